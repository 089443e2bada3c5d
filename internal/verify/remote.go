package verify

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/verifybuild/internal/eventstore"
	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
	"git.home.luguber.info/inful/verifybuild/internal/remote"
	"git.home.luguber.info/inful/verifybuild/internal/session"
)

// Farm is the remote build farm. *remote.Client implements it.
type Farm interface {
	remote.JobSource
	Submit(ctx context.Context, in remote.SubmitRequest) (*remote.SubmitResponse, error)
	StatusURL(programID string) string
}

// RemoteOutcome is the result of a remote verification.
type RemoteOutcome struct {
	RequestID string
	Job       *remote.Job
	// AlreadyProcessed is set when the farm had verified this program before;
	// StatusURL then points at the existing records.
	AlreadyProcessed bool
	Detail           string
	StatusURL        string
}

// RemoteVerifier offloads verify-from-repo to a build farm.
type RemoteVerifier struct {
	chain     Chain
	farm      Farm
	session   *session.Session
	interval  time.Duration
	indicator remote.Indicator
	journal   *eventstore.Journal
	recorder  metrics.Recorder
}

// NewRemoteVerifier returns a verifier submitting to farm.
func NewRemoteVerifier(chain Chain, farm Farm, sess *session.Session) *RemoteVerifier {
	return &RemoteVerifier{
		chain:    chain,
		farm:     farm,
		session:  sess,
		interval: remote.DefaultPollInterval,
		recorder: metrics.NoopRecorder{},
	}
}

// WithInterval sets the delay between polls.
func (r *RemoteVerifier) WithInterval(d time.Duration) *RemoteVerifier { r.interval = d; return r }

// WithIndicator sets the progress indicator run while waiting.
func (r *RemoteVerifier) WithIndicator(ind remote.Indicator) *RemoteVerifier {
	r.indicator = ind
	return r
}

// WithJournal records submissions and results in j.
func (r *RemoteVerifier) WithJournal(j *eventstore.Journal) *RemoteVerifier { r.journal = j; return r }

// WithRecorder sets the metrics recorder.
func (r *RemoteVerifier) WithRecorder(rec metrics.Recorder) *RemoteVerifier {
	if rec != nil {
		r.recorder = rec
	}
	return r
}

// SubmitRequest maps verify-from-repo options onto the farm request body.
func SubmitRequest(opts RepoOptions) remote.SubmitRequest {
	args := opts.CargoArgs
	if args == nil {
		args = []string{}
	}
	return remote.SubmitRequest{
		Repository: opts.RepoURL,
		CommitHash: remote.Optional(opts.Commit),
		ProgramID:  opts.ProgramID.String(),
		LibName:    remote.Optional(opts.Library),
		BPFFlag:    opts.BPF,
		MountPath:  remote.Optional(opts.MountPath),
		BaseImage:  remote.Optional(opts.BaseImage),
		CargoArgs:  args,
	}
}

// Verify submits opts to the farm and waits for a terminal job status.
// A job the farm has already processed is reported in the outcome, not as an
// error.
func (r *RemoteVerifier) Verify(ctx context.Context, opts RepoOptions) (*RemoteOutcome, error) {
	if err := RequireMainnet(ctx, r.chain); err != nil {
		return nil, err
	}
	programID := opts.ProgramID.String()
	resp, err := r.farm.Submit(ctx, SubmitRequest(opts))
	if err != nil {
		if stderrors.Is(err, remote.ErrAlreadyProcessed) {
			out := &RemoteOutcome{AlreadyProcessed: true, StatusURL: r.farm.StatusURL(programID)}
			if ce, ok := errors.AsClassified(err); ok {
				out.Detail, _ = ce.Context().GetString("detail")
			}
			slog.InfoContext(ctx, "Program already verified by the remote farm",
				logfields.ProgramID(programID), logfields.URL(out.StatusURL))
			return out, nil
		}
		return nil, err
	}
	r.journal.Record(ctx, eventstore.RemoteJobSubmitted{
		RequestID: resp.RequestID,
		ProgramID: programID,
		RepoURL:   opts.RepoURL,
	})

	poller := remote.NewPoller(r.farm, r.session).
		WithInterval(r.interval).
		WithIndicator(r.indicator).
		WithRecorder(r.recorder)
	job, err := poller.Wait(ctx, resp.RequestID)
	if job != nil {
		r.journal.Record(ctx, eventstore.RemoteJobFinished{
			RequestID: resp.RequestID,
			Status:    string(job.Status),
			Match:     job.Match(),
			Message:   job.Message,
		})
		if job.Status == remote.StatusCompleted {
			if job.Match() {
				r.recorder.IncVerification(metrics.VerificationMatch)
			} else {
				r.recorder.IncVerification(metrics.VerificationMismatch)
			}
		}
	}
	return &RemoteOutcome{RequestID: resp.RequestID, Job: job, StatusURL: r.farm.StatusURL(programID)}, err
}
