package commands

import (
	"fmt"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/hashing"
	"git.home.luguber.info/inful/verifybuild/internal/verify"
)

// GetExecutableHashCmd implements the 'get-executable-hash' command.
type GetExecutableHashCmd struct {
	Path string `arg:"" help:"Executable file" type:"existingfile"`
}

func (c *GetExecutableHashCmd) Run(g *Global, _ *CLI) error {
	h, err := hashing.HashFile(c.Path)
	if err != nil {
		return errors.FileSystemError("failed to hash executable").WithCause(err).
			WithContext("path", c.Path).Build()
	}
	fmt.Fprintln(g.Stdout, h)
	return nil
}

// GetProgramHashCmd implements the 'get-program-hash' command.
type GetProgramHashCmd struct {
	ProgramID string `arg:"" name:"program-id" help:"Program address"`
}

func (c *GetProgramHashCmd) Run(g *Global, root *CLI) error {
	program, err := parseKey("program-id", c.ProgramID)
	if err != nil {
		return err
	}
	e, err := newEnv(root)
	if err != nil {
		return err
	}
	h, _, err := verify.ProgramHash(g.Context(), e.chain, program)
	if err != nil {
		return err
	}
	fmt.Fprintln(g.Stdout, h)
	return nil
}

// GetBufferHashCmd implements the 'get-buffer-hash' command.
type GetBufferHashCmd struct {
	Buffer string `arg:"" help:"Buffer account address"`
}

func (c *GetBufferHashCmd) Run(g *Global, root *CLI) error {
	buffer, err := parseKey("buffer", c.Buffer)
	if err != nil {
		return err
	}
	e, err := newEnv(root)
	if err != nil {
		return err
	}
	h, err := verify.BufferHash(g.Context(), e.chain, buffer)
	if err != nil {
		return err
	}
	fmt.Fprintln(g.Stdout, h)
	return nil
}
