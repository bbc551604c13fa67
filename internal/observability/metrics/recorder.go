// Package metrics provides Prometheus metrics for the wildfire loader.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on this rather than on concrete collectors so that tests
// can pass a no-op or capturing implementation.
type Recorder interface {
	// RecordOperation records an operation with its status ("success" or "error").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) RecordOperation(string, string) {}
func (NoopRecorder) RecordDuration(string, float64) {}
func (NoopRecorder) RecordError(string, string)     {}
