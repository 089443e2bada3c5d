package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveBuildDuration(90*time.Second, OutcomeSuccess)
	pr.ObserveCloneDuration(2*time.Second, true)
	pr.IncVerification(VerificationMatch)
	pr.IncRemoteSubmission("accepted")
	pr.IncRemotePoll("in_progress")
	pr.IncRemotePoll("in_progress")
	pr.IncRemotePoll("completed")
	pr.IncProvenanceTransaction("initialize", OutcomeSuccess)
	pr.IncTeardown("container", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 7 {
		t.Fatalf("expected 7 metric families, got %d", len(mfs))
	}
	if got := testutil.ToFloat64(pr.remotePolls.WithLabelValues("in_progress")); got != 2 {
		t.Fatalf("in_progress polls = %v, want 2", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncVerification(VerificationMismatch)

	path := filepath.Join(t.TempDir(), "verifybuild.prom")
	if err := pr.WriteTextfile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `verifybuild_verifications_total{result="mismatch"} 1`) {
		t.Fatalf("textfile missing counter:\n%s", data)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncVerification(VerificationError)
	pr.ObserveBuildDuration(time.Second, OutcomeFailed)
}
