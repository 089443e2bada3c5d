package progress

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	matchStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	mismatchStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	labelStyle    = lipgloss.NewStyle().Faint(true)
)

// PrintHashes writes the two hashes of a comparison and the verdict line.
func PrintHashes(out io.Writer, executableHash, onChainHash string, match bool) {
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Executable Program Hash from repo:"), executableHash)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("On-chain Program Hash:            "), onChainHash)
	if match {
		fmt.Fprintln(out, matchStyle.Render("Program hash matches ✅"))
		return
	}
	fmt.Fprintln(out, mismatchStyle.Render("Program hashes do not match ❌"))
}
