package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

var frames = []string{"|", "/", "-", "\\"}

// Spinner shows that a remote job is still running. On a terminal it redraws
// a single line; otherwise it writes one line when it starts and one when it ends.
type Spinner struct {
	out         io.Writer
	message     string
	interval    time.Duration
	interactive bool
	now         func() time.Time
}

// NewSpinner returns a spinner writing to out.
func NewSpinner(out io.Writer, message string) *Spinner {
	return &Spinner{
		out:         out,
		message:     message,
		interval:    120 * time.Millisecond,
		interactive: isTerminal(out),
		now:         time.Now,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run draws until a result arrives on done or ctx ends. It reads done at most once.
func (s *Spinner) Run(ctx context.Context, done <-chan bool) {
	start := s.now()
	if !s.interactive {
		fmt.Fprintf(s.out, "%s...\n", s.message)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		if s.interactive {
			fmt.Fprintf(s.out, "\r%s %s (%s)", frames[i%len(frames)], s.message, elapsed(start, s.now()))
		}
		select {
		case ok := <-done:
			s.finish(start, ok)
			return
		case <-ctx.Done():
			s.finish(start, false)
			return
		case <-ticker.C:
		}
	}
}

func (s *Spinner) finish(start time.Time, ok bool) {
	mark := "failed"
	if ok {
		mark = "done"
	}
	prefix := ""
	if s.interactive {
		prefix = "\r\033[K"
	}
	fmt.Fprintf(s.out, "%s%s: %s after %s\n", prefix, s.message, mark, elapsed(start, s.now()))
}

func elapsed(start, now time.Time) string {
	if now.Sub(start) < time.Second {
		return "less than a second"
	}
	return strings.TrimSpace(humanize.RelTime(start, now, "", ""))
}
