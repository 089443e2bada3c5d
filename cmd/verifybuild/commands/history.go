package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"git.home.luguber.info/inful/verifybuild/internal/eventstore"
	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" default:"20" help:"Number of runs to show"`
}

func (c *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	ctx := g.Context()
	if !cfg.HistoryEnabled() {
		fmt.Fprintln(g.Stdout, "History is disabled.")
		return nil
	}
	store := g.openStore(ctx, cfg)
	if store == nil {
		return errors.FileSystemError("history database unavailable").WithContext("path", cfg.History).Build()
	}
	runs, err := eventstore.NewHistoryProjection(store, c.Limit).Recent(ctx)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "read history").Build()
	}
	if len(runs) == 0 {
		fmt.Fprintln(g.Stdout, "No runs recorded.")
		return nil
	}
	t := newTable("Started", "Command", "Program", "Outcome", "Detail")
	for _, r := range runs {
		t.Row(humanize.Time(r.StartedAt), r.Command, r.ProgramID, r.Outcome, detail(r))
	}
	fmt.Fprintln(g.Stdout, t.Render())
	return nil
}

func detail(r *eventstore.RunSummary) string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Signature != "":
		return "tx " + r.Signature
	case r.RequestID != "":
		return "job " + r.RequestID + " " + r.JobStatus
	default:
		return r.ExecutableHash
	}
}
