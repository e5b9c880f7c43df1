package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxErrorBody bounds how much of a failed response we read looking for
// the backend's error envelope.
const maxErrorBody = 64 << 10

// Client talks to the analysis backend. Every method performs exactly one
// round trip and returns a classified *Error on failure; retry, caching
// and deduplication live in internal/executor, not here.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type options struct {
	verbose bool
	// writer controls where verbose HTTP logs are written (typically stderr) so
	// structured output on stdout stays clean and tests can capture logs.
	writer    io.Writer
	transport http.RoundTripper
}

type Option func(*options)

func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
	}
}

// WithTransport overrides the base transport. Tests use this to stub the
// backend without a listener.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// loggingRoundTripper wraps an underlying transport and emits one line per
// request and response (including latency) when verbose logging is enabled.
type loggingRoundTripper struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	if t.w != nil {
		_, _ = fmt.Fprintf(t.w, "[verbose] backend: %s %s\n", req.Method, req.URL.String())
	}
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if t.w != nil {
		if err != nil {
			_, _ = fmt.Fprintf(t.w, "[verbose] backend: error after %s: %v\n", dur.Truncate(time.Millisecond), err)
		} else {
			_, _ = fmt.Fprintf(t.w, "[verbose] backend: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), dur.Truncate(time.Millisecond))
		}
	}
	return resp, err
}

// NewClient builds a backend client for baseURL. An empty token means
// unauthenticated requests; otherwise the token rides as a bearer header
// on every call.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend client: base URL is empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend client: parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend client: base URL %q must be absolute", baseURL)
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.writer == nil {
		o.writer = os.Stderr
	}

	transport := o.transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, w: o.writer}
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}

	return &Client{
		baseURL: u,
		http:    &http.Client{Transport: transport},
	}, nil
}

// StartAnalysis submits a new analysis job for the given login.
func (c *Client) StartAnalysis(ctx context.Context, req AnalysisRequest) (*AnalysisAccepted, error) {
	if req.Login == "" {
		return nil, &Error{Kind: KindClient, Message: "login is empty"}
	}
	var out AnalysisAccepted
	if err := c.do(ctx, http.MethodPost, "/analysis", req, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		return nil, &Error{Kind: KindServer, Message: "backend accepted the job but returned no job id"}
	}
	return &out, nil
}

// JobStatus fetches the current phase and progress counters of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/analysis/"+url.PathEscape(jobID)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobResults fetches the scored repository set of a finished job. Shortly
// after completion the backend may briefly answer 404 or 409 while results
// settle; callers that want those retried route this through the executor
// with the matching retryable statuses.
func (c *Client) JobResults(ctx context.Context, jobID string) (*ResultsResponse, error) {
	var out ResultsResponse
	if err := c.do(ctx, http.MethodGet, "/analysis/"+url.PathEscape(jobID)+"/results", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sync pushes locally merged results upstream.
func (c *Client) Sync(ctx context.Context) (*SyncResponse, error) {
	var out SyncResponse
	if err := c.do(ctx, http.MethodPost, "/sync", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InvalidateCache asks the backend to drop its cached value for key.
func (c *Client) InvalidateCache(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/cache/invalidate/"+url.PathEscape(key), nil, nil)
}

// do performs one JSON round trip. Transport failures and non-2xx
// responses come back as classified *Error values.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if ctx == nil {
		return &Error{Kind: KindClient, Message: "nil context"}
	}

	u := c.baseURL.JoinPath(path)
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindClient, Message: fmt.Sprintf("encode request: %v", err), Cause: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &Error{Kind: KindClient, Message: fmt.Sprintf("build request: %v", err), Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyResponse(resp, readErrorMessage(resp.Body))
	}
	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decode response: %v", err),
			Cause:      err,
		}
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.text() != "" {
		return body.text()
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200]
	}
	// HTML error pages from intermediaries are noise, not messages.
	if strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}
