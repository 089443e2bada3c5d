package commands

import (
	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/verifybuild/internal/config"
	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
)

// CLI is the root command. Global flags override the configuration file and
// the environment.
type CLI struct {
	URL         string           `short:"u" name:"url" help:"RPC URL or network alias (mainnet, devnet, localnet)"`
	Config      string           `short:"c" help:"Configuration file path (default ~/.config/verifybuild/config.yaml)" type:"path"`
	Keypair     string           `short:"k" help:"Signer keypair file used for provenance uploads"`
	Verbose     bool             `short:"v" help:"Enable verbose logging"`
	PriorityFee uint64           `name:"priority-fee" help:"Priority fee in micro-lamports per compute unit for provenance transactions"`
	MetricsFile string           `name:"metrics-file" help:"Write Prometheus metrics to this textfile on exit" type:"path"`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build             BuildCmd             `cmd:"" help:"Build a program deterministically in a container"`
	VerifyFromImage   VerifyFromImageCmd   `cmd:"" name:"verify-from-image" help:"Verify a program against an executable shipped in a container image"`
	GetExecutableHash GetExecutableHashCmd `cmd:"" name:"get-executable-hash" help:"Print the canonical hash of an executable file"`
	GetProgramHash    GetProgramHashCmd    `cmd:"" name:"get-program-hash" help:"Print the canonical hash of a deployed program"`
	GetBufferHash     GetBufferHashCmd     `cmd:"" name:"get-buffer-hash" help:"Print the canonical hash of a loader buffer"`
	VerifyFromRepo    VerifyFromRepoCmd    `cmd:"" name:"verify-from-repo" help:"Build a repository and verify it against a deployed program"`
	RemoteStatus      RemoteStatusCmd      `cmd:"" name:"remote-status" help:"Show the remote verification records of a program"`
	RemoteJob         RemoteJobCmd         `cmd:"" name:"remote-job" help:"Show the state of a remote verification job"`
	Close             CloseCmd             `cmd:"" help:"Close the caller's provenance record for a program"`
	History           HistoryCmd           `cmd:"" help:"Show the local verification history"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	SetupLogging(c.Verbose)
	return nil
}

// LoadConfig reads the configuration and applies the global flag overrides.
func (c *CLI) LoadConfig() (*config.Config, error) {
	path, required := c.Config, c.Config != ""
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, errors.ConfigError("failed to load configuration").WithCause(err).
			WithContext("path", path).Build()
	}
	if c.URL != "" {
		cfg.RPCURL = config.ResolveRPCURL(c.URL)
	}
	if c.Keypair != "" {
		cfg.Keypair = c.Keypair
	}
	if c.PriorityFee > 0 {
		cfg.Provenance.PriorityFee = c.PriorityFee
	}
	return cfg, nil
}
