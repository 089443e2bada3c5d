package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
)

// Event type names.
const (
	TypeRunStarted            = "RunStarted"
	TypeVerificationCompleted = "VerificationCompleted"
	TypeRemoteJobSubmitted    = "RemoteJobSubmitted"
	TypeRemoteJobFinished     = "RemoteJobFinished"
	TypeProvenanceRecorded    = "ProvenanceRecorded"
	TypeRunFailed             = "RunFailed"
)

func newEvent(runID, eventType string, payload any) (*BaseEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.InternalError("failed to marshal " + eventType + " payload").
			WithCause(err).
			WithContext("run_id", runID).
			Build()
	}
	return &BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   raw,
	}, nil
}

// RunStarted opens a run.
type RunStarted struct {
	Command   string `json:"command"`
	ProgramID string `json:"program_id,omitempty"`
	Network   string `json:"network,omitempty"`
}

// VerificationCompleted records a verdict.
type VerificationCompleted struct {
	ProgramID      string `json:"program_id"`
	Source         string `json:"source"`
	RepoURL        string `json:"repo_url,omitempty"`
	Commit         string `json:"commit,omitempty"`
	Image          string `json:"image,omitempty"`
	ExecutableHash string `json:"executable_hash"`
	OnChainHash    string `json:"on_chain_hash"`
	Match          bool   `json:"match"`
}

// RemoteJobSubmitted records a job accepted by the farm.
type RemoteJobSubmitted struct {
	RequestID string `json:"request_id"`
	ProgramID string `json:"program_id"`
	RepoURL   string `json:"repo_url"`
}

// RemoteJobFinished records the terminal status of a job.
type RemoteJobFinished struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Match     bool   `json:"match"`
	Message   string `json:"message,omitempty"`
}

// ProvenanceRecorded records a confirmed provenance transaction.
type ProvenanceRecorded struct {
	ProgramID   string `json:"program_id"`
	Instruction string `json:"instruction"`
	Address     string `json:"address"`
	Signature   string `json:"signature"`
}

// RunFailed closes a run that ended with an error.
type RunFailed struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

func eventType(payload any) string {
	switch payload.(type) {
	case RunStarted, *RunStarted:
		return TypeRunStarted
	case VerificationCompleted, *VerificationCompleted:
		return TypeVerificationCompleted
	case RemoteJobSubmitted, *RemoteJobSubmitted:
		return TypeRemoteJobSubmitted
	case RemoteJobFinished, *RemoteJobFinished:
		return TypeRemoteJobFinished
	case ProvenanceRecorded, *ProvenanceRecorded:
		return TypeProvenanceRecorded
	case RunFailed, *RunFailed:
		return TypeRunFailed
	default:
		return ""
	}
}

// Journal appends the events of one run. A nil Journal records nothing, which
// is how history is switched off.
type Journal struct {
	store Store
	runID string
}

// NewJournal returns a journal writing to store under runID.
func NewJournal(store Store, runID string) *Journal {
	return &Journal{store: store, runID: runID}
}

// RunID returns the run identifier.
func (j *Journal) RunID() string {
	if j == nil {
		return ""
	}
	return j.runID
}

// Record appends payload, which must be one of the event structs of this
// package. History is best effort: failures are logged, not returned.
func (j *Journal) Record(ctx context.Context, payload any) {
	if j == nil || j.store == nil {
		return
	}
	typ := eventType(payload)
	if typ == "" {
		slog.WarnContext(ctx, "Unknown history event", slog.String("type", typeName(payload)))
		return
	}
	e, err := newEvent(j.runID, typ, payload)
	if err == nil {
		err = j.store.Append(ctx, e.RunID(), e.Type(), e.Payload(), nil)
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to record history", slog.String("type", typ), logfields.Error(err))
	}
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}
