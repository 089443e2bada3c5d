package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
)

func TestSubmitSendsNullForEmptyOptionals(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/verify", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"status":"ok","request_id":"job-1","message":"queued"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Submit(context.Background(), SubmitRequest{
		Repository: "https://github.com/acme/prog",
		ProgramID:  "Prog111",
		LibName:    Optional("prog"),
		CargoArgs:  []string{"--features", "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.RequestID)

	assert.Nil(t, body["commit_hash"])
	assert.Contains(t, body, "commit_hash")
	assert.Nil(t, body["base_image"])
	assert.Equal(t, "prog", body["lib_name"])
	assert.Equal(t, false, body["bpf_flag"])
}

func TestSubmitAlreadyProcessed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"status":"error","error":"already verified"}`))
	}))
	defer srv.Close()

	rec := metrics.NewPrometheusRecorder(nil)
	c := NewClient(srv.URL, WithRecorder(rec))
	_, err := c.Submit(context.Background(), SubmitRequest{ProgramID: "Prog111"})
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, errors.SeverityInfo, ce.Severity())
	statusURL, _ := ce.Context().GetString("status_url")
	assert.Equal(t, srv.URL+"/status/Prog111", statusURL)
}

func TestSubmitServerErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Submit(context.Background(), SubmitRequest{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRemote))
	assert.Contains(t, err.Error(), "boom")
	assert.NotErrorIs(t, err, ErrAlreadyProcessed)
}

func TestJobAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/job/abc":
			_, _ = w.Write([]byte(`{"status":"completed","message":"done","on_chain_hash":"h1","executable_hash":"h1","repo_url":"u"}`))
		case "/status/Prog111":
			_, _ = w.Write([]byte(`[{"signer":"S","is_verified":true,"on_chain_hash":"h1","executable_hash":"h1","repo_url":"u","commit":"c","last_verified_at":"2024-01-01T00:00:00"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	job, err := c.Job(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.True(t, job.Match())

	records, err := c.Status(context.Background(), "Prog111")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsVerified)
	assert.Equal(t, "c", records[0].Commit)

	_, err = c.Job(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRemote))
}

func TestStatusAcceptsSingleRecord(t *testing.T) {
	var env statusEnvelope
	require.NoError(t, json.Unmarshal([]byte(`{"signer":"S","is_verified":false}`), &env))
	require.Len(t, env, 1)
	assert.Equal(t, "S", env[0].Signer)
}

func TestJobMatch(t *testing.T) {
	assert.False(t, (&Job{Status: StatusCompleted, OnChainHash: "a", ExecutableHash: "b"}).Match())
	assert.False(t, (&Job{Status: StatusFailed, OnChainHash: "a", ExecutableHash: "a"}).Match())
	assert.False(t, (&Job{Status: StatusCompleted}).Match())
	assert.True(t, StatusUnknown.Terminal())
	assert.True(t, JobStatus("weird").Terminal())
	assert.False(t, StatusInProgress.Terminal())
}
