package chantp

// Options configures a call pair.
//
// Defaults:
// - MaxRecvBytes: -1 (unbounded)
// - QueueDepth:   64 pending completions per end
//
// All options are safe to leave zero-valued only through NewPair, which
// starts from defaults.
type Options struct {
	MaxRecvBytes int
	QueueDepth   int
}

// Option mutates Options.
//
// Use the WithX helpers below.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxRecvBytes: -1,
		QueueDepth:   64,
	}
}

// WithMaxRecvBytes bounds deserialized receive messages on both ends.
func WithMaxRecvBytes(n int) Option { return func(o *Options) { o.MaxRecvBytes = n } }

// WithQueueDepth sets each end's completion queue buffer.
func WithQueueDepth(n int) Option { return func(o *Options) { o.QueueDepth = n } }
