package remote

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
	"git.home.luguber.info/inful/verifybuild/internal/session"
)

// DefaultPollInterval is the delay between job status requests.
const DefaultPollInterval = 10 * time.Second

var (
	// ErrJobFailed means the farm reported the job as failed.
	ErrJobFailed = stderrors.New("remote job failed")
	// ErrJobUnknown means the farm no longer knows the job.
	ErrJobUnknown = stderrors.New("remote job status unknown")
)

// JobSource fetches job state. *Client implements it.
type JobSource interface {
	Job(ctx context.Context, requestID string) (*Job, error)
}

// Indicator renders progress while a job runs. It receives at most one value
// on done, true for a successful job, and must return once it has read it or
// ctx is done.
type Indicator func(ctx context.Context, done <-chan bool)

// Poller waits for a submitted job to reach a terminal status.
type Poller struct {
	source    JobSource
	session   *session.Session
	interval  time.Duration
	indicator Indicator
	recorder  metrics.Recorder
}

// NewPoller returns a poller that checks sess before every request. A nil
// session leaves cancellation to the context.
func NewPoller(source JobSource, sess *session.Session) *Poller {
	return &Poller{
		source:   source,
		session:  sess,
		interval: DefaultPollInterval,
		recorder: metrics.NoopRecorder{},
	}
}

// WithInterval sets the delay between polls.
func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

// WithIndicator sets the progress indicator.
func (p *Poller) WithIndicator(ind Indicator) *Poller {
	p.indicator = ind
	return p
}

// WithRecorder sets the metrics recorder.
func (p *Poller) WithRecorder(r metrics.Recorder) *Poller {
	if r != nil {
		p.recorder = r
	}
	return p
}

func (p *Poller) checkpoint(ctx context.Context) error {
	if p.session != nil {
		if err := p.session.Checkpoint(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapError(err, errors.CategoryInterrupted, "polling stopped").Build()
	}
	return nil
}

// Wait polls requestID until the job is terminal. A completed job is returned
// without error whether or not its hashes match; failed and unknown jobs are
// returned together with ErrJobFailed or ErrJobUnknown. When the session trips
// no further requests are made and the job is abandoned on the farm.
func (p *Poller) Wait(ctx context.Context, requestID string) (*Job, error) {
	done := make(chan bool, 1)
	joined := make(chan struct{})
	indCtx, stopIndicator := context.WithCancel(ctx)
	defer stopIndicator()
	go func() {
		defer close(joined)
		if p.indicator != nil {
			p.indicator(indCtx, done)
		}
	}()
	finish := func(ok bool) {
		done <- ok
		<-joined
	}

	for polls := 1; ; polls++ {
		if err := p.checkpoint(ctx); err != nil {
			slog.WarnContext(ctx, "Abandoning remote job", logfields.RequestID(requestID))
			finish(false)
			return nil, err
		}

		job, err := p.source.Job(ctx, requestID)
		if err != nil {
			finish(false)
			if cerr := p.checkpoint(ctx); cerr != nil {
				return nil, cerr
			}
			return nil, err
		}
		p.recorder.IncRemotePoll(string(job.Status))
		slog.DebugContext(ctx, "Polled remote job",
			logfields.RequestID(requestID), logfields.JobStatus(string(job.Status)), slog.Int("poll", polls))

		if job.Status.Terminal() {
			finish(job.Status == StatusCompleted)
			return job, terminalError(requestID, job)
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func terminalError(requestID string, job *Job) error {
	switch job.Status {
	case StatusCompleted:
		return nil
	case StatusFailed:
		return errors.RemoteError("remote job failed").
			WithCause(ErrJobFailed).
			WithContext("request_id", requestID).
			WithContext("message", job.Message).Build()
	default:
		return errors.RemoteError("remote job ended with status " + string(job.Status)).
			WithCause(ErrJobUnknown).
			WithContext("request_id", requestID).
			WithContext("message", job.Message).Build()
	}
}
