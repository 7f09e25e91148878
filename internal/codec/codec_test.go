package codec

import (
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type sample struct {
	N    int
	Text string
}

func TestJSONRoundTrip(t *testing.T) {
	in := sample{N: 5, Text: "hello"}
	data, err := JSON{}.Marshal(&in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out sample
	if err := (JSON{}).Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip: got %+v, want %+v", out, in)
	}
}

func TestProtoRoundTrip(t *testing.T) {
	in := wrapperspb.String("hello")
	data, err := Proto{}.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := &wrapperspb.StringValue{}
	if err := (Proto{}).Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !proto.Equal(in, out) {
		t.Fatalf("round trip: got %v, want %v", out, in)
	}
}

func TestProtoRejectsNonProto(t *testing.T) {
	if _, err := (Proto{}).Marshal(&sample{}); err == nil {
		t.Fatal("expected marshal error")
	}
	if err := (Proto{}).Unmarshal(nil, &sample{}); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestRawPassThrough(t *testing.T) {
	in := []byte{1, 2, 3}
	data, err := Raw{}.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []byte
	if err := (Raw{}).Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(out) != string(in) {
		t.Fatalf("round trip: got %v, want %v", out, in)
	}
	if _, err := (Raw{}).Marshal(42); err == nil {
		t.Fatal("expected error for non-bytes value")
	}
}

func TestUnmarshalBounded(t *testing.T) {
	payload, err := JSON{}.Marshal(&sample{N: 1, Text: "bounded"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out sample
	if st := UnmarshalBounded(JSON{}, payload, &out, len(payload)); !st.IsOK() {
		t.Fatalf("sufficient bound: %v", st)
	}
	if st := UnmarshalBounded(JSON{}, payload, &out, -1); !st.IsOK() {
		t.Fatalf("unbounded: %v", st)
	}
	if st := UnmarshalBounded(JSON{}, payload, &out, len(payload)-1); st.Code != codes.ResourceExhausted {
		t.Fatalf("undersized bound: got %v, want ResourceExhausted", st)
	}
	if st := UnmarshalBounded(JSON{}, []byte("garbage"), &out, -1); st.Code != codes.Internal {
		t.Fatalf("parse failure: got %v, want Internal", st)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"proto", "json", "raw"} {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if c.Name() != name {
			t.Fatalf("ByName(%q).Name() = %q", name, c.Name())
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}
