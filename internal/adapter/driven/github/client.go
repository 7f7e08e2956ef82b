// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/repoforge/apb/internal/domain/model"
	"github.com/repoforge/apb/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

const (
	requestTimeout = 30 * time.Second
	// 3 attempts total on transient failures.
	maxRetries = 2
)

// Client implements the driven.GitHubClient port using the go-github library.
type Client struct {
	gh            *gh.Client
	retryInterval time.Duration
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
//
// The HTTP client carries an explicit per-request timeout; transient failures
// are additionally retried with exponential backoff.
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	rateLimitClient.Timeout = requestTimeout
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:            client,
		retryInterval: 500 * time.Millisecond,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest
// server; the retry backoff is shortened so retry paths stay fast under test.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:            client,
		retryInterval: time.Millisecond,
	}, nil
}

// SearchRepositories returns every repository matching the query.
// It handles pagination automatically and maps go-github types to domain
// model types.
func (c *Client) SearchRepositories(ctx context.Context, query string) ([]model.Repository, error) {
	opts := &gh.SearchOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var repos []model.Repository

	for {
		var (
			result *gh.RepositoriesSearchResult
			resp   *gh.Response
		)

		err := c.withRetry(ctx, func() error {
			var err error
			result, resp, err = c.gh.Search.Repositories(ctx, query, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("searching repositories (page %d): %w", opts.Page, err)
		}

		logRateLimit(resp, "search", opts.Page, len(result.Repositories))

		for _, r := range result.Repositories {
			repos = append(repos, mapRepository(r))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if repos == nil {
		repos = []model.Repository{}
	}

	return repos, nil
}

// LatestWorkflowRun returns the most recent completed run of the named
// workflow. Only one run is requested; GitHub returns runs newest first.
// A 404 for the workflow maps to driven.ErrWorkflowNotFound; a workflow
// with no completed runs maps to nil, nil.
func (c *Client) LatestWorkflowRun(ctx context.Context, repoFullName, workflowID string) (*model.WorkflowRun, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListWorkflowRunsOptions{
		Status:      "completed",
		ListOptions: gh.ListOptions{PerPage: 1},
	}

	var (
		runs *gh.WorkflowRuns
		resp *gh.Response
	)

	err = c.withRetry(ctx, func() error {
		var err error
		runs, resp, err = c.gh.Actions.ListWorkflowRunsByFileName(ctx, owner, repo, workflowID, opts)
		return err
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("workflow %s in %s: %w", workflowID, repoFullName, driven.ErrWorkflowNotFound)
		}
		return nil, fmt.Errorf("listing runs of %s in %s: %w", workflowID, repoFullName, err)
	}

	logRateLimit(resp, repoFullName+"/runs", 0, len(runs.WorkflowRuns))

	if len(runs.WorkflowRuns) == 0 {
		return nil, nil
	}

	run := runs.WorkflowRuns[0]
	return &model.WorkflowRun{
		CompletedAt: run.GetUpdatedAt().Time,
		Conclusion:  run.GetConclusion(),
	}, nil
}

// SendDispatch sends a repository dispatch event of the given type.
func (c *Client) SendDispatch(ctx context.Context, repoFullName, eventType string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	err = c.withRetry(ctx, func() error {
		_, resp, err := c.gh.Repositories.Dispatch(ctx, owner, repo, gh.DispatchRequestOptions{
			EventType: eventType,
		})
		logRateLimit(resp, repoFullName+"/dispatches", 0, 1)
		return err
	})
	if err != nil {
		return fmt.Errorf("dispatching %s event to %s: %w", eventType, repoFullName, err)
	}

	return nil
}

// withRetry runs fn with bounded exponential backoff. Only transient failures
// (timeouts, connection errors, 5xx responses) are retried; API errors such as
// 404 or 422 fail immediately.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = 10 * time.Second

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("transient github api error, retrying", "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

// isTransient reports whether an error is worth retrying: network-level
// failures and 5xx responses. Everything else is permanent.
func isTransient(err error) bool {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) {
		return ghErr.Response != nil && ghErr.Response.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// mapRepository converts a go-github Repository to a domain model Repository.
func mapRepository(r *gh.Repository) model.Repository {
	return model.Repository{
		FullName:      r.GetFullName(),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		Private:       r.GetPrivate(),
		DefaultBranch: r.GetDefaultBranch(),
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
