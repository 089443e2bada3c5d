package commands

import (
	"fmt"

	"git.home.luguber.info/inful/verifybuild/internal/verify"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	MountPath   string   `arg:"" optional:"" default:"." help:"Source tree containing Cargo.lock" type:"path"`
	LibraryName string   `name:"library-name" help:"Library target to build and hash"`
	BaseImage   string   `name:"base-image" short:"b" help:"Build image to use instead of the one matching Cargo.lock"`
	BPF         bool     `name:"bpf" help:"Build with cargo build-bpf"`
	CargoArgs   []string `arg:"" optional:"" passthrough:"" help:"Arguments passed to cargo after --"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	e, err := newEnv(root)
	if err != nil {
		return err
	}
	builder, err := e.builder(g)
	if err != nil {
		return err
	}
	res, err := builder.Build(g.Context(), verify.BuildOptions{
		MountPath: b.MountPath,
		Library:   b.LibraryName,
		BaseImage: b.BaseImage,
		BPF:       b.BPF,
		CargoArgs: trimSeparator(b.CargoArgs),
	})
	if err != nil {
		return err
	}
	if res.Artifact != nil {
		fmt.Fprintf(g.Stdout, "Executable hash: %s\n", res.Hash)
	}
	return nil
}

// trimSeparator drops the leading "--" kong keeps in passthrough arguments.
func trimSeparator(args []string) []string {
	if len(args) > 0 && args[0] == "--" {
		return args[1:]
	}
	return args
}
