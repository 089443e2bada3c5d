package commands

import (
	"fmt"

	"git.home.luguber.info/inful/verifybuild/internal/config"
	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/ledger"
	"git.home.luguber.info/inful/verifybuild/internal/progress"
	"git.home.luguber.info/inful/verifybuild/internal/provenance"
	"git.home.luguber.info/inful/verifybuild/internal/remote"
	"git.home.luguber.info/inful/verifybuild/internal/retry"
	"git.home.luguber.info/inful/verifybuild/internal/sandbox"
	"git.home.luguber.info/inful/verifybuild/internal/toolchain"
	"git.home.luguber.info/inful/verifybuild/internal/verify"
)

// env holds the collaborators built from the effective configuration.
type env struct {
	cfg   *config.Config
	chain *ledger.Client
}

func newEnv(root *CLI) (*env, error) {
	cfg, err := root.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, chain: ledger.NewClient(cfg.RPCURL)}, nil
}

// parseKey parses a base58 address named by flag.
func parseKey(flag, s string) (ledger.PublicKey, error) {
	pk, err := ledger.ParsePublicKey(s)
	if err != nil {
		return pk, errors.ValidationError(fmt.Sprintf("invalid %s", flag)).WithCause(err).
			WithContext(flag, s).Build()
	}
	return pk, nil
}

func (e *env) limits() sandbox.Limits {
	return sandbox.Limits{Memory: e.cfg.Docker.MemoryLimit, CPUs: e.cfg.Docker.CPULimit}
}

// builder returns a builder using the embedded image table, extended by the
// configured image file.
func (e *env) builder(g *Global) (*verify.Builder, error) {
	table, err := toolchain.DefaultTable()
	if err != nil {
		return nil, errors.InternalError("load image table").WithCause(err).Build()
	}
	if e.cfg.Docker.Images != "" {
		extra, err := toolchain.LoadTable(e.cfg.Docker.Images)
		if err != nil {
			return nil, errors.ConfigError("load docker.images").WithCause(err).
				WithContext("path", e.cfg.Docker.Images).Build()
		}
		table = table.Merge(extra)
	}
	exec := sandbox.NewExecutor(sandbox.NewDockerRunner(), g.Session).WithRecorder(g.Recorder)
	return verify.NewBuilder(table, exec, e.limits()), nil
}

func (e *env) verifier(g *Global) (*verify.Verifier, error) {
	b, err := e.builder(g)
	if err != nil {
		return nil, err
	}
	return verify.NewVerifier(b, e.chain, g.Session).
		WithCloner(verify.GitCloner(g.Recorder)).
		WithJournal(g.Journal()).
		WithRecorder(g.Recorder), nil
}

func (e *env) farm(g *Global) *remote.Client {
	return remote.NewClient(e.cfg.Remote.URL, remote.WithRecorder(g.Recorder))
}

// uploader loads the signer and returns a provenance uploader that asks before
// creating a record competing with the default uploader's.
func (e *env) uploader(g *Global, assumeYes bool) (*provenance.Uploader, error) {
	kp, err := ledger.LoadKeypair(e.cfg.Keypair)
	if err != nil {
		return nil, errors.ConfigError("failed to load signer keypair").WithCause(err).
			WithContext("path", e.cfg.Keypair).Build()
	}
	programID, err := parseKey("provenance.program_id", e.cfg.Provenance.ProgramID)
	if err != nil {
		return nil, err
	}
	defaultUploader, err := parseKey("provenance.default_uploader", e.cfg.Provenance.DefaultUploader)
	if err != nil {
		return nil, err
	}
	policy, err := retry.FromConfig(e.cfg.Provenance.Confirm)
	if err != nil {
		return nil, errors.ConfigError("invalid provenance.confirm").WithCause(err).Build()
	}
	return provenance.NewUploader(provenance.Protocol{ProgramID: programID}, e.chain, kp, defaultUploader).
		WithConfirmer(progress.NewPrompter(assumeYes)).
		WithPriorityFee(e.cfg.Provenance.PriorityFee).
		WithPolicy(policy).
		WithRecorder(g.Recorder), nil
}
