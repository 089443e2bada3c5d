package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// Run outcome values.
const (
	OutcomeRunning  = "running"
	OutcomeMatch    = "match"
	OutcomeMismatch = "mismatch"
	OutcomeFailed   = "failed"
)

// RunSummary folds the events of one run.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	Command        string    `json:"command"`
	ProgramID      string    `json:"program_id,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Outcome        string    `json:"outcome"`
	ExecutableHash string    `json:"executable_hash,omitempty"`
	OnChainHash    string    `json:"on_chain_hash,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	JobStatus      string    `json:"job_status,omitempty"`
	Signature      string    `json:"signature,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// HistoryProjection builds run summaries from the store.
type HistoryProjection struct {
	store   Store
	maxSize int
}

// NewHistoryProjection returns a projection keeping at most maxSize runs.
func NewHistoryProjection(store Store, maxSize int) *HistoryProjection {
	if maxSize <= 0 {
		maxSize = 20
	}
	return &HistoryProjection{store: store, maxSize: maxSize}
}

// Recent returns the newest runs first.
func (p *HistoryProjection) Recent(ctx context.Context) ([]*RunSummary, error) {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return nil, err
	}
	runs := make(map[string]*RunSummary)
	for _, e := range events {
		apply(runs, e)
	}
	out := make([]*RunSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > p.maxSize {
		out = out[:p.maxSize]
	}
	return out, nil
}

func apply(runs map[string]*RunSummary, e Event) {
	id := e.RunID()
	if id == "" {
		return
	}
	r, ok := runs[id]
	if !ok {
		r = &RunSummary{RunID: id, StartedAt: e.Timestamp(), Outcome: OutcomeRunning}
		runs[id] = r
	}
	r.UpdatedAt = e.Timestamp()

	switch e.Type() {
	case TypeRunStarted:
		var p RunStarted
		if json.Unmarshal(e.Payload(), &p) == nil {
			r.Command = p.Command
			r.ProgramID = p.ProgramID
			r.StartedAt = e.Timestamp()
		}
	case TypeVerificationCompleted:
		var p VerificationCompleted
		if json.Unmarshal(e.Payload(), &p) == nil {
			r.ProgramID = p.ProgramID
			r.ExecutableHash = p.ExecutableHash
			r.OnChainHash = p.OnChainHash
			r.Outcome = OutcomeMismatch
			if p.Match {
				r.Outcome = OutcomeMatch
			}
		}
	case TypeRemoteJobSubmitted:
		var p RemoteJobSubmitted
		if json.Unmarshal(e.Payload(), &p) == nil {
			r.RequestID = p.RequestID
			r.ProgramID = p.ProgramID
		}
	case TypeRemoteJobFinished:
		var p RemoteJobFinished
		if json.Unmarshal(e.Payload(), &p) == nil {
			r.JobStatus = p.Status
			switch {
			case p.Match:
				r.Outcome = OutcomeMatch
			case p.Status == "completed":
				r.Outcome = OutcomeMismatch
			default:
				r.Outcome = OutcomeFailed
			}
		}
	case TypeProvenanceRecorded:
		var p ProvenanceRecorded
		if json.Unmarshal(e.Payload(), &p) == nil {
			r.Signature = p.Signature
		}
	case TypeRunFailed:
		var p RunFailed
		if json.Unmarshal(e.Payload(), &p) == nil {
			r.Error = p.Error
			r.Outcome = OutcomeFailed
		}
	}
}
