package commands

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// RemoteStatusCmd implements the 'remote-status' command.
type RemoteStatusCmd struct {
	ProgramID string `name:"program-id" required:"" help:"Program address"`
}

func (c *RemoteStatusCmd) Run(g *Global, root *CLI) error {
	program, err := parseKey("program-id", c.ProgramID)
	if err != nil {
		return err
	}
	e, err := newEnv(root)
	if err != nil {
		return err
	}
	records, err := e.farm(g).Status(g.Context(), program.String())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(g.Stdout, "No remote verification records for %s\n", program)
		return nil
	}
	t := newTable("Signer", "Verified", "Executable hash", "Repository", "Commit", "Last verified")
	for _, r := range records {
		t.Row(r.Signer, strconv.FormatBool(r.IsVerified), r.ExecutableHash, r.RepoURL, r.Commit, r.LastVerifiedAt)
	}
	fmt.Fprintln(g.Stdout, t.Render())
	return nil
}

// RemoteJobCmd implements the 'remote-job' command.
type RemoteJobCmd struct {
	JobID string `name:"job-id" required:"" help:"Request id returned on submission"`
}

func (c *RemoteJobCmd) Run(g *Global, root *CLI) error {
	e, err := newEnv(root)
	if err != nil {
		return err
	}
	job, err := e.farm(g).Job(g.Context(), c.JobID)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Stdout, "Status: %s\n", job.Status)
	if job.Message != "" {
		fmt.Fprintf(g.Stdout, "Message: %s\n", job.Message)
	}
	if job.RepoURL != "" {
		fmt.Fprintf(g.Stdout, "Repository: %s\n", job.RepoURL)
	}
	if job.ExecutableHash != "" || job.OnChainHash != "" {
		fmt.Fprintf(g.Stdout, "Executable hash: %s\n", job.ExecutableHash)
		fmt.Fprintf(g.Stdout, "On-chain hash: %s\n", job.OnChainHash)
		fmt.Fprintf(g.Stdout, "Match: %t\n", job.Match())
	}
	return nil
}
