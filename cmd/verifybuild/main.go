package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/verifybuild/cmd/verifybuild/commands"
	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/session"
	"git.home.luguber.info/inful/verifybuild/internal/version"
)

// teardownTimeout bounds resource release after the run ends.
const teardownTimeout = 30 * time.Second

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("verifybuild"),
		kong.Description("Deterministic builds of on-chain programs and verification against the deployed bytecode."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	sess := session.New(context.Background())
	stop := sess.Watch(os.Interrupt, syscall.SIGTERM)
	g := commands.NewGlobal(sess)

	err := parser.Run(g, cli)
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	if tdErr := sess.Teardown(ctx); tdErr != nil {
		slog.Warn("Failed to release resources", logfields.Error(tdErr))
	}
	cancel()
	err = sess.Result(err)
	g.Finish(context.Background(), cli.MetricsFile, err)

	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
