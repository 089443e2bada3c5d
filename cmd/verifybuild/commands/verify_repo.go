package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/verifybuild/internal/config"
	"git.home.luguber.info/inful/verifybuild/internal/eventstore"
	"git.home.luguber.info/inful/verifybuild/internal/ledger"
	"git.home.luguber.info/inful/verifybuild/internal/progress"
	"git.home.luguber.info/inful/verifybuild/internal/provenance"
	"git.home.luguber.info/inful/verifybuild/internal/verify"
	"git.home.luguber.info/inful/verifybuild/internal/version"
)

// VerifyFromRepoCmd implements the 'verify-from-repo' command.
type VerifyFromRepoCmd struct {
	RepoURL     string   `arg:"" name:"repo-url" help:"Repository to clone"`
	ProgramID   string   `name:"program-id" required:"" help:"Program address"`
	CommitHash  string   `name:"commit-hash" help:"Commit to check out (default branch when empty)"`
	MountPath   string   `name:"mount-path" help:"Program directory relative to the repository root"`
	LibraryName string   `name:"library-name" help:"Library target to build; inferred when the tree has exactly one"`
	BaseImage   string   `name:"base-image" short:"b" help:"Build image to use instead of the one matching Cargo.lock"`
	BPF         bool     `name:"bpf" help:"Build with cargo build-bpf"`
	Remote      bool     `help:"Build on the remote farm instead of locally (mainnet only)"`
	CurrentDir  bool     `name:"current-dir" help:"Clone into a hidden directory under the working directory"`
	Yes         bool     `short:"y" help:"Answer yes to every confirmation"`
	SkipUpload  bool     `name:"skip-upload" help:"Do not record provenance on the ledger after a match"`
	CargoArgs   []string `arg:"" optional:"" passthrough:"" help:"Arguments passed to cargo after --"`
}

func (c *VerifyFromRepoCmd) options(program ledger.PublicKey) verify.RepoOptions {
	return verify.RepoOptions{
		RepoURL:    c.RepoURL,
		Commit:     c.CommitHash,
		ProgramID:  program,
		MountPath:  c.MountPath,
		Library:    c.LibraryName,
		BaseImage:  c.BaseImage,
		BPF:        c.BPF,
		CargoArgs:  trimSeparator(c.CargoArgs),
		CurrentDir: c.CurrentDir,
	}
}

func (c *VerifyFromRepoCmd) Run(g *Global, root *CLI) error {
	program, err := parseKey("program-id", c.ProgramID)
	if err != nil {
		return err
	}
	e, err := newEnv(root)
	if err != nil {
		return err
	}
	ctx := g.Context()
	g.StartRun(ctx, e.cfg, "verify-from-repo", program.String())
	opts := c.options(program)
	if c.Remote {
		return c.runRemote(ctx, g, e, opts)
	}

	v, err := e.verifier(g)
	if err != nil {
		return err
	}
	res, err := v.VerifyRepo(ctx, opts)
	if err != nil {
		return err
	}
	progress.PrintHashes(g.Stdout, res.Verdict.BuiltHash.String(), res.Verdict.OnChainHash.String(), res.Verdict.Match)
	if !res.Verdict.Match || c.SkipUpload {
		return nil
	}
	return upload(ctx, g, e, c.Yes, program, provenance.Params{
		Version:   version.Version,
		RepoURL:   c.RepoURL,
		Commit:    res.Commit,
		BuildArgs: verify.UploadArgs(opts, res.Library),
	})
}

func (c *VerifyFromRepoCmd) runRemote(ctx context.Context, g *Global, e *env, opts verify.RepoOptions) error {
	interval, err := config.ParseDuration(e.cfg.Remote.PollInterval)
	if err != nil {
		return err
	}
	farm := e.farm(g)
	spinner := progress.NewSpinner(g.Stderr, "Waiting for the remote build")
	out, err := verify.NewRemoteVerifier(e.chain, farm, g.Session).
		WithInterval(interval).
		WithIndicator(spinner.Run).
		WithJournal(g.Journal()).
		WithRecorder(g.Recorder).
		Verify(ctx, opts)
	if out != nil && out.AlreadyProcessed {
		fmt.Fprintf(g.Stdout, "Verification already processed: %s\n", out.Detail)
		fmt.Fprintf(g.Stdout, "Check the verification status at: %s\n", out.StatusURL)
		return nil
	}
	if err != nil {
		if out != nil && out.Job != nil && out.Job.Message != "" {
			fmt.Fprintf(g.Stderr, "Remote job %s: %s\n", out.RequestID, out.Job.Message)
		}
		return err
	}
	job := out.Job
	progress.PrintHashes(g.Stdout, job.ExecutableHash, job.OnChainHash, job.Match())
	fmt.Fprintf(g.Stdout, "Check the verification status at: %s\n", out.StatusURL)
	return nil
}

// upload asks before writing a provenance record for program.
func upload(ctx context.Context, g *Global, e *env, assumeYes bool, program ledger.PublicKey, params provenance.Params) error {
	prompt := progress.NewPrompter(assumeYes)
	ok, err := prompt.Confirm(ctx, fmt.Sprintf("Upload the verification of %s to the ledger?", program))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(g.Stdout, "Exiting without uploading the verification.")
		return nil
	}
	u, err := e.uploader(g, assumeYes)
	if err != nil {
		return err
	}
	res, err := u.Upload(ctx, program, params)
	if err != nil {
		return err
	}
	recordProvenance(ctx, g, program, res)
	fmt.Fprintf(g.Stdout, "Provenance recorded (%s) at %s. Transaction: %s\n", res.Kind, res.Address, res.Signature)
	return nil
}

func recordProvenance(ctx context.Context, g *Global, program ledger.PublicKey, res *provenance.Result) {
	g.Journal().Record(ctx, eventstore.ProvenanceRecorded{
		ProgramID:   program.String(),
		Instruction: res.Kind.String(),
		Address:     res.Address.String(),
		Signature:   res.Signature.String(),
	})
}
