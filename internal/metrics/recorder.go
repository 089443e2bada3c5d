package metrics

import "time"

// Outcome labels the end state of a timed operation.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// VerificationResult labels a comparison result.
type VerificationResult string

const (
	VerificationMatch    VerificationResult = "match"
	VerificationMismatch VerificationResult = "mismatch"
	VerificationError    VerificationResult = "error"
)

// Recorder defines observability hooks for builds, verifications, remote jobs
// and provenance transactions. Implementations may forward to Prometheus or
// anything else.
type Recorder interface {
	ObserveBuildDuration(d time.Duration, outcome Outcome)
	ObserveCloneDuration(d time.Duration, success bool)
	IncVerification(result VerificationResult)
	IncRemoteSubmission(outcome string) // outcome: accepted|already_processed|failed
	IncRemotePoll(status string)
	IncProvenanceTransaction(instruction string, outcome Outcome)
	IncTeardown(kind string, success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration, Outcome) {}
func (NoopRecorder) ObserveCloneDuration(time.Duration, bool)    {}
func (NoopRecorder) IncVerification(VerificationResult)          {}
func (NoopRecorder) IncRemoteSubmission(string)                  {}
func (NoopRecorder) IncRemotePoll(string)                        {}
func (NoopRecorder) IncProvenanceTransaction(string, Outcome)    {}
func (NoopRecorder) IncTeardown(string, bool)                    {}

// OutcomeFor maps an operation's error to an Outcome. canceled reports whether
// the error came from cancellation.
func OutcomeFor(err error, canceled bool) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case canceled:
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}
