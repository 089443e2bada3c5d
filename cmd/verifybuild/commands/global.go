package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/verifybuild/internal/config"
	"git.home.luguber.info/inful/verifybuild/internal/eventstore"
	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
	"git.home.luguber.info/inful/verifybuild/internal/session"
)

// Global is the state shared by every subcommand of one process.
type Global struct {
	Session  *session.Session
	Recorder *metrics.PrometheusRecorder
	Stdout   io.Writer
	Stderr   io.Writer

	store   eventstore.Store
	journal *eventstore.Journal
}

// NewGlobal returns the process state for sess.
func NewGlobal(sess *session.Session) *Global {
	return &Global{
		Session:  sess,
		Recorder: metrics.NewPrometheusRecorder(nil),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

// Context is cancelled when the session trips.
func (g *Global) Context() context.Context { return g.Session.Context() }

// Journal returns the history journal of the current run; nil when history is off.
func (g *Global) Journal() *eventstore.Journal { return g.journal }

// openStore opens the history database once. Failure disables history for
// the run instead of failing it.
func (g *Global) openStore(ctx context.Context, cfg *config.Config) eventstore.Store {
	if g.store != nil || !cfg.HistoryEnabled() {
		return g.store
	}
	store, err := eventstore.NewSQLiteStore(cfg.History)
	if err != nil {
		slog.WarnContext(ctx, "History disabled", logfields.Path(cfg.History), logfields.Error(err))
		return nil
	}
	g.store = store
	return store
}

// StartRun opens a history run for command.
func (g *Global) StartRun(ctx context.Context, cfg *config.Config, command, programID string) {
	store := g.openStore(ctx, cfg)
	if store == nil {
		return
	}
	g.journal = eventstore.NewJournal(store, uuid.NewString())
	g.journal.Record(ctx, eventstore.RunStarted{Command: command, ProgramID: programID, Network: cfg.RPCURL})
}

// Finish closes the run: a failure is journaled, the history store is
// closed and metrics are exported when metricsFile is set.
func (g *Global) Finish(ctx context.Context, metricsFile string, runErr error) {
	if runErr != nil {
		g.journal.Record(ctx, eventstore.RunFailed{
			Error:    runErr.Error(),
			Category: string(errors.GetCategory(runErr)),
		})
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			slog.WarnContext(ctx, "Failed to close history", logfields.Error(err))
		}
		g.store = nil
	}
	if metricsFile != "" {
		if err := g.Recorder.WriteTextfile(metricsFile); err != nil {
			slog.WarnContext(ctx, "Failed to write metrics", logfields.Path(metricsFile), logfields.Error(err))
		}
	}
}
