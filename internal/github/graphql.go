package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ContributionSummary aggregates a user's contributions over the trailing
// year. These totals are only exposed by the GraphQL API.
type ContributionSummary struct {
	Commits      int
	PullRequests int
	Issues       int
	Reviews      int
}

const contributionsQuery = `query($login: String!) {
  user(login: $login) {
    contributionsCollection {
      totalCommitContributions
      totalPullRequestContributions
      totalIssueContributions
      totalPullRequestReviewContributions
    }
  }
}`

type contributionsData struct {
	User struct {
		ContributionsCollection struct {
			TotalCommitContributions            int `json:"totalCommitContributions"`
			TotalPullRequestContributions       int `json:"totalPullRequestContributions"`
			TotalIssueContributions             int `json:"totalIssueContributions"`
			TotalPullRequestReviewContributions int `json:"totalPullRequestReviewContributions"`
		} `json:"contributionsCollection"`
	} `json:"user"`
}

// Contributions fetches login's trailing-year contribution totals. The
// GraphQL API rejects anonymous calls, so this needs an authenticated client;
// callers treat failures as a missing enrichment, not a fatal error.
func (c *Client) Contributions(ctx context.Context, login string) (*ContributionSummary, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, fmt.Errorf("login is required")
	}

	resp, err := doGraphQL[contributionsData](ctx, c, graphQLRequest{
		Query:     contributionsQuery,
		Variables: map[string]any{"login": login},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch contributions for %s: %w", login, err)
	}

	cc := resp.Data.User.ContributionsCollection
	return &ContributionSummary{
		Commits:      cc.TotalCommitContributions,
		PullRequests: cc.TotalPullRequestContributions,
		Issues:       cc.TotalIssueContributions,
		Reviews:      cc.TotalPullRequestReviewContributions,
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func graphqlEndpoint(base *url.URL) (*url.URL, error) {
	if base == nil {
		return nil, fmt.Errorf("graphql: base url is nil")
	}

	u := *base
	u.RawQuery = ""
	u.Fragment = ""

	// GitHub.com REST base: https://api.github.com/
	// GitHub.com GraphQL:   https://api.github.com/graphql
	//
	// GHES REST base is typically: https://<host>/api/v3/
	// GHES GraphQL:               https://<host>/api/graphql
	path := strings.TrimSuffix(u.Path, "/")
	if strings.HasSuffix(path, "/api/v3") {
		u.Path = "/api/graphql"
		return &u, nil
	}

	// Default to host-root /graphql.
	u.Path = "/graphql"
	return &u, nil
}

// doGraphQL executes a GraphQL POST against the GitHub API using the same
// underlying transport configuration as the REST client (auth, verbose
// logging, etc.).
func doGraphQL[T any](ctx context.Context, c *Client, req graphQLRequest) (graphQLResponse[T], error) {
	var zero graphQLResponse[T]
	if ctx == nil {
		return zero, fmt.Errorf("graphql: ctx is nil")
	}
	if c == nil || c.gh == nil || c.http == nil {
		return zero, fmt.Errorf("graphql: client is nil")
	}

	endpoint, err := graphqlEndpoint(c.gh.BaseURL)
	if err != nil {
		return zero, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("graphql: marshal request: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("graphql: build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return zero, fmt.Errorf("graphql: do request: %w", err)
	}
	defer func() { _ = hresp.Body.Close() }()

	if hresp.StatusCode < 200 || hresp.StatusCode >= 300 {
		return zero, fmt.Errorf("graphql: http %d", hresp.StatusCode)
	}

	var out graphQLResponse[T]
	if err := json.NewDecoder(hresp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("graphql: decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return zero, fmt.Errorf("graphql: %s", out.Errors[0].Message)
	}

	return out, nil
}
