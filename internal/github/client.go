// Package github wraps the GitHub API for account preflight: confirming a
// login exists and enriching output with profile and contribution data
// before the backend is asked to analyze it.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// ErrAccountNotFound reports that the requested login does not exist.
var ErrAccountNotFound = errors.New("github account not found")

type Client struct {
	gh   *github.Client
	http *http.Client
}

// Account describes a resolved GitHub account (user or organization).
type Account struct {
	Login       string
	Name        string
	Type        string // "User" or "Organization"
	PublicRepos int
	Followers   int
	ProfileURL  string
}

type options struct {
	verbose bool
	// writer controls where verbose HTTP logs are written (typically stderr)
	// so structured output on stdout stays clean and tests can capture logs.
	writer io.Writer
}

type Option func(*options)

func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
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
		_, _ = fmt.Fprintf(t.w, "[verbose] github api: %s %s\n", req.Method, req.URL.String())
	}
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if t.w != nil {
		if err != nil {
			_, _ = fmt.Fprintf(t.w, "[verbose] github api: error after %s: %v\n", dur.Truncate(time.Millisecond), err)
		} else {
			_, _ = fmt.Fprintf(t.w, "[verbose] github api: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), dur.Truncate(time.Millisecond))
		}
	}
	return resp, err
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
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

	transport := http.DefaultTransport
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, w: o.writer}
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	// Always provide an http.Client so verbose logging works even without a token.
	tc := &http.Client{Transport: transport}

	return &Client{
		gh:   github.NewClient(tc),
		http: tc,
	}, nil
}

// ResolveAccount confirms login exists on GitHub and returns its profile.
// The users endpoint serves organizations too, so one call covers both.
func (c *Client) ResolveAccount(ctx context.Context, login string) (*Account, error) {
	if c == nil || c.gh == nil {
		return nil, fmt.Errorf("github client is nil")
	}
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, fmt.Errorf("login is required")
	}

	user, resp, err := c.gh.Users.Get(ctx, login)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, login)
		}
		return nil, fmt.Errorf("resolve account %s: %w", login, err)
	}

	return &Account{
		Login:       user.GetLogin(),
		Name:        user.GetName(),
		Type:        user.GetType(),
		PublicRepos: user.GetPublicRepos(),
		Followers:   user.GetFollowers(),
		ProfileURL:  user.GetHTMLURL(),
	}, nil
}
