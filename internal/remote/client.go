package remote

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
)

// ErrAlreadyProcessed is returned by Submit when the farm has already
// verified the same request (HTTP 409).
var ErrAlreadyProcessed = stderrors.New("verification already processed")

// Client is an HTTP client for the remote build farm.
type Client struct {
	baseURL    string
	httpClient *http.Client
	recorder   metrics.Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewClient returns a client for the farm at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		recorder:   metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the farm URL.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusURL is the lookup endpoint for a program's verification records.
func (c *Client) StatusURL(programID string) string {
	return c.baseURL + "/status/" + url.PathEscape(programID)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, endpoint)

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "verifybuild")
	return req, nil
}

// doRequest performs req. Non-2xx answers are returned as the status code
// and raw body without decoding.
func (c *Client) doRequest(req *http.Request, result any) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, raw, nil
	}
	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return resp.StatusCode, raw, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, raw, nil
}

func transportError(op string, err error) error {
	if stderrors.Is(err, context.Canceled) {
		return errors.WrapError(err, errors.CategoryInterrupted, op).Build()
	}
	return errors.WrapError(err, errors.CategoryNetwork, op).Fatal().Build()
}

func statusError(op string, code int, body []byte) error {
	return errors.RemoteError(fmt.Sprintf("%s: http %d: %s", op, code, bytes.TrimSpace(body))).
		WithContext("status_code", code).
		WithContext("body", string(body)).Build()
}

// Submit posts a verification request and returns the job id.
func (c *Client) Submit(ctx context.Context, in SubmitRequest) (*SubmitResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/verify", in)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "build submit request").Build()
	}
	var out SubmitResponse
	code, raw, err := c.doRequest(req, &out)
	switch {
	case err != nil:
		c.recorder.IncRemoteSubmission("error")
		return nil, transportError("submit verification", err)
	case code == http.StatusConflict:
		c.recorder.IncRemoteSubmission("already_processed")
		var conflict conflictResponse
		_ = json.Unmarshal(raw, &conflict)
		msg := conflict.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, errors.NewError(errors.CategoryAlreadyExists, "verification already processed").
			WithCause(ErrAlreadyProcessed).Info().
			WithContext("detail", msg).
			WithContext("status_url", c.StatusURL(in.ProgramID)).Build()
	case code < 200 || code > 299:
		c.recorder.IncRemoteSubmission("error")
		return nil, statusError("submit verification", code, raw)
	}
	c.recorder.IncRemoteSubmission("accepted")
	slog.InfoContext(ctx, "Verification request submitted",
		logfields.RequestID(out.RequestID), logfields.ProgramID(in.ProgramID), logfields.URL(c.baseURL))
	return &out, nil
}

// Job fetches the current state of a job.
func (c *Client) Job(ctx context.Context, requestID string) (*Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/job/"+url.PathEscape(requestID), nil)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "build job request").Build()
	}
	var out Job
	code, raw, err := c.doRequest(req, &out)
	if err != nil {
		return nil, transportError("poll job", err)
	}
	if code < 200 || code > 299 {
		return nil, statusError("poll job", code, raw)
	}
	return &out, nil
}

// Status lists the verification records the farm holds for a program.
func (c *Client) Status(ctx context.Context, programID string) ([]StatusRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/status/"+url.PathEscape(programID), nil)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "build status request").Build()
	}
	var out statusEnvelope
	code, raw, err := c.doRequest(req, &out)
	if err != nil {
		return nil, transportError("query status", err)
	}
	if code < 200 || code > 299 {
		return nil, statusError("query status", code, raw)
	}
	return out, nil
}
