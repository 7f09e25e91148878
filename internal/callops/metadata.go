package callops

import (
	"maps"
	"slices"

	"google.golang.org/grpc/metadata"

	"github.com/hanpama/callwire/internal/wire"
)

// metadataEntries flattens md into wire entries. Keys are emitted in sorted
// order so contribution is deterministic; values keep their per-key order.
// Duplicate keys are preserved as separate entries.
func metadataEntries(md metadata.MD) []wire.MetadataEntry {
	if len(md) == 0 {
		return nil
	}
	entries := make([]wire.MetadataEntry, 0, md.Len())
	for _, k := range slices.Sorted(maps.Keys(md)) {
		for _, v := range md[k] {
			entries = append(entries, wire.MetadataEntry{Key: k, Value: v})
		}
	}
	return entries
}

// fillMetadata drains arr into *dst, allocating the destination map when the
// caller left it nil. Keys are normalized to lower case on the way in.
func fillMetadata(arr *wire.MetadataArray, dst *metadata.MD) {
	if *dst == nil {
		*dst = metadata.MD{}
	}
	for _, e := range arr.Entries {
		(*dst).Append(e.Key, e.Value)
	}
	arr.Entries = nil
}
