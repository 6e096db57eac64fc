package ml

const (
	defaultSampleSize      = 256
	defaultContamination   = 0.1
	defaultMinSamplesSplit = 2
)

// Option configures a forest at construction time. Options that do not apply
// to a forest type are ignored by it.
type Option func(*config)

type config struct {
	trees           int
	sampleSize      int
	contamination   float64
	maxFeatures     int
	minSamplesSplit int
	maxDepth        int
	seed            uint64
	workers         int
}

func newConfig(opts []Option, trees int) config {
	cfg := config{
		trees:           trees,
		sampleSize:      defaultSampleSize,
		contamination:   defaultContamination,
		minSamplesSplit: defaultMinSamplesSplit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithTrees sets the number of trees in the ensemble.
func WithTrees(n int) Option {
	return func(c *config) { c.trees = n }
}

// WithSampleSize sets the sub-sample size of each isolation tree.
func WithSampleSize(n int) Option {
	return func(c *config) { c.sampleSize = n }
}

// WithContamination sets the expected outlier fraction used to calibrate
// the isolation forest threshold.
func WithContamination(v float64) Option {
	return func(c *config) { c.contamination = v }
}

// WithMaxFeatures sets how many features a classifier node evaluates
// (0 = floor(sqrt(d))).
func WithMaxFeatures(n int) Option {
	return func(c *config) { c.maxFeatures = n }
}

// WithMinSamplesSplit sets the smallest node a classifier tree will split.
func WithMinSamplesSplit(n int) Option {
	return func(c *config) { c.minSamplesSplit = n }
}

// WithMaxDepth limits classifier tree depth (0 = unlimited).
func WithMaxDepth(n int) Option {
	return func(c *config) { c.maxDepth = n }
}

// WithSeed sets the random seed used at fit time.
func WithSeed(seed uint64) Option {
	return func(c *config) { c.seed = seed }
}

// WithWorkers bounds how many trees are built concurrently (0 = GOMAXPROCS).
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}
