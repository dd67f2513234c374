package collator

import "github.com/sirupsen/logrus"

const (
	defaultPartitionCount = 128 // 2^7, spec.md §3 default
	defaultBufferCount    = 16
	partitionBufMem       = 1 * 1024 * 1024 // 1 MiB staging budget per partition
	readAheadBytes        = 5 * 1024 * 1024 // 5 MiB iterator read-ahead
)

type config struct {
	partitionCount  uint32
	bufferCount     int
	tempDir         string
	computeStats    bool
	readAheadBytes  int
	log             *logrus.Logger
}

func defaultConfig() *config {
	return &config{
		partitionCount: defaultPartitionCount,
		bufferCount:    defaultBufferCount,
		tempDir:        ".",
		readAheadBytes: readAheadBytes,
		log:            defaultLogger(),
	}
}

// Option configures a Collator at construction time.
type Option func(*config)

// WithPartitionCount overrides the default partition count P. P must be a
// power of two; New validates this and returns ErrPartitionCountNotPow2
// otherwise.
func WithPartitionCount(p uint32) Option {
	return func(c *config) { c.partitionCount = p }
}

// WithBufferCount overrides the default producer buffer count K (default
// 16). A good heuristic, per the reference design, is twice the number of
// concurrent producers, to avoid throttling them on checkout.
func WithBufferCount(k int) Option {
	return func(c *config) { c.bufferCount = k }
}

// WithTempDir sets the directory prefix under which partition files are
// created. Equivalent to the work_pref argument of the original design,
// but kept separate from the path stem passed to New so the stem can stay
// a plain base name.
func WithTempDir(dir string) Option {
	return func(c *config) { c.tempDir = dir }
}

// WithComputeStats enables the optional statistics subsystem (pair count,
// unique key count, modal key frequency), gathered during Collate. Without
// this option, the corresponding accessors return ErrStatsNotEnabled.
func WithComputeStats() Option {
	return func(c *config) { c.computeStats = true }
}

// WithReadAheadBytes overrides the iterator's read-ahead block size
// (default 5 MiB).
func WithReadAheadBytes(n int) Option {
	return func(c *config) { c.readAheadBytes = n }
}

// WithLogger overrides the logrus logger used for lifecycle and fatal
// diagnostics. The default logger writes structured text to stderr.
func WithLogger(l *logrus.Logger) Option {
	return func(c *config) { c.log = l }
}
