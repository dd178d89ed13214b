package slice

import (
	"github.com/KevoDB/rowslice/pkg/common/log"
)

// DefaultBlockBufferHint is the initial capacity, in atoms, of the buffer a
// reversed scan decodes each block into
const DefaultBlockBufferHint = 256

// Strategy identifies the reader serving an iterator
type Strategy int

const (
	// StrategyNone serves rows absent from the table
	StrategyNone Strategy = iota
	// StrategyForward streams the row from its first atom
	StrategyForward
	// StrategyIndexed seeks through the row's index blocks
	StrategyIndexed
)

// String returns the string representation of the strategy
func (s Strategy) String() string {
	switch s {
	case StrategyForward:
		return "forward"
	case StrategyIndexed:
		return "indexed"
	default:
		return "none"
	}
}

// SelectStrategy picks the reader for a slice. An unbounded forward scan has to
// start at the row's first atom anyway, so it never needs the index.
func SelectStrategy(start []byte, reversed bool) Strategy {
	if len(start) == 0 && !reversed {
		return StrategyForward
	}
	return StrategyIndexed
}

// Options configures a slice iterator
type Options struct {
	// Logger receives strategy and corruption diagnostics
	Logger log.Logger
	// Metrics records slice telemetry
	Metrics SliceMetrics
	// BlockBufferHint sizes the reversed-scan block buffer, in atoms
	BlockBufferHint int

	// forced overrides SelectStrategy; used to compare readers on equal inputs
	forced Strategy
}

// Option is a function that configures Options
type Option func(*Options)

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics SliceMetrics) Option {
	return func(o *Options) {
		o.Metrics = metrics
	}
}

// WithBlockBufferHint sets the reversed-scan buffer capacity in atoms
func WithBlockBufferHint(atoms int) Option {
	return func(o *Options) {
		if atoms > 0 {
			o.BlockBufferHint = atoms
		}
	}
}

func withStrategy(s Strategy) Option {
	return func(o *Options) {
		o.forced = s
	}
}

func newOptions(opts []Option) *Options {
	o := &Options{BlockBufferHint: DefaultBlockBufferHint}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = log.GetDefaultLogger().WithField("component", "slice")
	}
	if o.Metrics == nil {
		o.Metrics = NewNoopSliceMetrics()
	}
	return o
}
