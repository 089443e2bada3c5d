package commands

import "fmt"

// CloseCmd implements the 'close' command.
type CloseCmd struct {
	ProgramID string `name:"program-id" required:"" help:"Program whose provenance record is closed"`
}

func (c *CloseCmd) Run(g *Global, root *CLI) error {
	program, err := parseKey("program-id", c.ProgramID)
	if err != nil {
		return err
	}
	e, err := newEnv(root)
	if err != nil {
		return err
	}
	ctx := g.Context()
	g.StartRun(ctx, e.cfg, "close", program.String())
	u, err := e.uploader(g, false)
	if err != nil {
		return err
	}
	res, err := u.Close(ctx, program)
	if err != nil {
		return err
	}
	recordProvenance(ctx, g, program, res)
	fmt.Fprintf(g.Stdout, "Closed provenance record %s. Transaction: %s\n", res.Address, res.Signature)
	return nil
}
