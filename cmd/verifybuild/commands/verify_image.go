package commands

import (
	"fmt"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/verify"
)

// VerifyFromImageCmd implements the 'verify-from-image' command.
type VerifyFromImageCmd struct {
	ExecutablePath string `short:"e" name:"executable-path-in-image" required:"" help:"Executable path relative to the image working directory"`
	Image          string `short:"i" required:"" help:"Image containing the executable"`
	ProgramID      string `short:"p" name:"program-id" required:"" help:"Program address"`
	CurrentDir     bool   `name:"current-dir" help:"Use a hidden directory under the working directory for scratch files"`
}

func (c *VerifyFromImageCmd) Run(g *Global, root *CLI) error {
	program, err := parseKey("program-id", c.ProgramID)
	if err != nil {
		return err
	}
	e, err := newEnv(root)
	if err != nil {
		return err
	}
	ctx := g.Context()
	g.StartRun(ctx, e.cfg, "verify-from-image", program.String())
	v, err := e.verifier(g)
	if err != nil {
		return err
	}
	verdict, err := v.VerifyImage(ctx, verify.ImageOptions{
		Image:          c.Image,
		ExecutablePath: c.ExecutablePath,
		ProgramID:      program,
		CurrentDir:     c.CurrentDir,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Stdout, "Executable hash: %s\n", verdict.BuiltHash)
	fmt.Fprintf(g.Stdout, "Program hash: %s\n", verdict.OnChainHash)
	if !verdict.Match {
		return errors.ValidationError("executable hash mismatch").WithCause(verify.ErrMismatch).
			WithContext("image", c.Image).Build()
	}
	fmt.Fprintln(g.Stdout, "Executable matches on-chain program data ✅")
	return nil
}
