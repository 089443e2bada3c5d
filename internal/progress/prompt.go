package progress

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
)

// Prompter asks yes/no questions on a terminal. One reader goroutine serves
// every question so answers typed ahead are kept in order.
type Prompter struct {
	in          io.Reader
	out         io.Writer
	assumeYes   bool
	interactive bool

	start   sync.Once
	answers chan answer
}

type answer struct {
	line string
	err  error
}

// NewPrompter returns a prompter reading answers from stdin. With assumeYes
// every question is answered yes without being shown.
func NewPrompter(assumeYes bool) *Prompter {
	return &Prompter{
		in:          os.Stdin,
		out:         os.Stderr,
		assumeYes:   assumeYes,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// readLines delivers input lines until the reader fails, then closes answers.
func (p *Prompter) readLines() {
	defer close(p.answers)
	r := bufio.NewReader(p.in)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			p.answers <- answer{line: line, err: err}
			return
		}
		p.answers <- answer{line: line}
	}
}

// Confirm prints question and waits for an answer. Without a terminal on
// stdin the answer is no. Cancelling ctx while waiting is an interruption.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	if !p.interactive {
		slog.WarnContext(ctx, "Cannot prompt without a terminal; pass --yes to proceed", slog.String("question", question))
		return false, nil
	}
	if ctx.Err() != nil {
		return false, cancelled(ctx)
	}
	p.start.Do(func() {
		p.answers = make(chan answer)
		go p.readLines()
	})
	fmt.Fprintf(p.out, "%s [y/N] ", question)

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, cancelled(ctx)
	case a, ok := <-p.answers:
		if !ok {
			return false, nil
		}
		if a.err != nil && a.err != io.EOF {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

func cancelled(ctx context.Context) error {
	return errors.InterruptedError("prompt cancelled").WithCause(ctx.Err()).Build()
}
