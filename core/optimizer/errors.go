package optimizer

import "errors"

var (
	// ErrCacheMiss is returned by GetFromCache for absent or expired keys
	ErrCacheMiss = errors.New("query cache miss")
	// ErrUnsupported is returned by a processor that does not implement an operation.
	// Callers fall back silently.
	ErrUnsupported = errors.New("operation not supported by graph processor")
	// ErrNilProcessor is returned when a query is executed without a processor
	ErrNilProcessor = errors.New("graph processor is nil")
	// ErrNilQuery is returned when a nil query is optimized
	ErrNilQuery = errors.New("query is nil")
)
