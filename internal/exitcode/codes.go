package exitcode

// Exit codes for the tidepods CLI.
// Batch schedulers use them to decide whether a retry makes sense.
const (
	// Success - run completed and outputs were written
	Success = 0

	// ConfigError - invalid flags, level token, or engine installation
	// Don't retry: fix the config first
	ConfigError = 1

	// InputError - unsupported AOI format, wrong geometry, missing metadata
	// Don't retry: fix the input
	InputError = 2

	// EngineError - the tide predictor failed or produced no output
	// May be retried
	EngineError = 3

	// DataError - no points sampled, acquisition outside the series, bad series file
	// Don't retry: investigate the data
	DataError = 4

	// StorageError - failed to publish outputs
	// Retry with backoff
	StorageError = 5
)
