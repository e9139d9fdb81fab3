package exitcodes

// Exit codes for sdclean.
// Scripts driving the cleaner depend on these values; do not renumber.
const (
	Success         = 0 // Every job finished without failures
	InvalidConfig   = 2 // Configuration file or job definition invalid
	SafetyViolation = 3 // A guard violation aborted a job
	RuntimeError    = 4 // Runtime error during execution
	PartialFailure  = 5 // Jobs finished but some entries could not be deleted
)
