package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/repoforge/apb/internal/adapter/driven/github"
	"github.com/repoforge/apb/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *ghAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/")
	require.NoError(t, err)

	return client
}

// repoJSON is a helper struct for building GitHub API search responses.
type repoJSON struct {
	FullName      string   `json:"full_name"`
	Name          string   `json:"name"`
	Owner         userJSON `json:"owner"`
	Private       bool     `json:"private"`
	DefaultBranch string   `json:"default_branch"`
}

type userJSON struct {
	Login string `json:"login"`
}

type searchJSON struct {
	TotalCount        int        `json:"total_count"`
	IncompleteResults bool       `json:"incomplete_results"`
	Items             []repoJSON `json:"items"`
}

type workflowRunsJSON struct {
	TotalCount   int       `json:"total_count"`
	WorkflowRuns []runJSON `json:"workflow_runs"`
}

type runJSON struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	UpdatedAt  string `json:"updated_at"`
}

func TestSearchRepositories_SinglePage(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/repositories", r.URL.Path)
		assert.Equal(t, "org:example archived:false", r.URL.Query().Get("q"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(searchJSON{
			TotalCount: 2,
			Items: []repoJSON{
				{FullName: "example/alpha", Name: "alpha", Owner: userJSON{Login: "example"}, DefaultBranch: "main"},
				{FullName: "example/beta", Name: "beta", Owner: userJSON{Login: "example"}, Private: true, DefaultBranch: "develop"},
			},
		})
	})

	client := newTestClient(t, handler)
	repos, err := client.SearchRepositories(context.Background(), "org:example archived:false")

	require.NoError(t, err)
	require.Len(t, repos, 2)

	assert.Equal(t, "example/alpha", repos[0].FullName)
	assert.Equal(t, "example", repos[0].Owner)
	assert.Equal(t, "alpha", repos[0].Name)
	assert.False(t, repos[0].Private)
	assert.Equal(t, "main", repos[0].DefaultBranch)

	assert.Equal(t, "example/beta", repos[1].FullName)
	assert.True(t, repos[1].Private)
}

func TestSearchRepositories_Pagination(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")

		w.Header().Set("Content-Type", "application/json")

		if page == "" || page == "1" {
			w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
			json.NewEncoder(w).Encode(searchJSON{
				TotalCount: 2,
				Items:      []repoJSON{{FullName: "example/one", Name: "one", Owner: userJSON{Login: "example"}}},
			})
		} else {
			json.NewEncoder(w).Encode(searchJSON{
				TotalCount: 2,
				Items:      []repoJSON{{FullName: "example/two", Name: "two", Owner: userJSON{Login: "example"}}},
			})
		}
	})

	client := newTestClient(t, handler)
	repos, err := client.SearchRepositories(context.Background(), "org:example")

	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "example/one", repos[0].FullName)
	assert.Equal(t, "example/two", repos[1].FullName)
}

func TestSearchRepositories_Empty(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(searchJSON{})
	})

	client := newTestClient(t, handler)
	repos, err := client.SearchRepositories(context.Background(), "org:empty")

	require.NoError(t, err)
	assert.Empty(t, repos)
	assert.NotNil(t, repos)
}

func TestLatestWorkflowRun_Found(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/example/alpha/actions/workflows/build.yml/runs", r.URL.Path)
		assert.Equal(t, "completed", r.URL.Query().Get("status"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(workflowRunsJSON{
			TotalCount: 1,
			WorkflowRuns: []runJSON{
				{ID: 99, Status: "completed", Conclusion: "success", UpdatedAt: "2026-08-01T10:30:00Z"},
			},
		})
	})

	client := newTestClient(t, handler)
	run, err := client.LatestWorkflowRun(context.Background(), "example/alpha", "build.yml")

	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "success", run.Conclusion)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC), run.CompletedAt)
}

func TestLatestWorkflowRun_NoRuns(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(workflowRunsJSON{TotalCount: 0, WorkflowRuns: []runJSON{}})
	})

	client := newTestClient(t, handler)
	run, err := client.LatestWorkflowRun(context.Background(), "example/alpha", "build.yml")

	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestLatestWorkflowRun_WorkflowMissing(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	client := newTestClient(t, handler)
	run, err := client.LatestWorkflowRun(context.Background(), "example/alpha", "missing.yml")

	require.Error(t, err)
	assert.Nil(t, run)
	assert.ErrorIs(t, err, driven.ErrWorkflowNotFound)
}

func TestLatestWorkflowRun_InvalidRepoName(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	_, err := client.LatestWorkflowRun(context.Background(), "not-a-full-name", "build.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected owner/repo")
}

func TestSendDispatch(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody struct {
		EventType string `json:"event_type"`
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(t, handler)
	err := client.SendDispatch(context.Background(), "example/alpha", "apb")

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/repos/example/alpha/dispatches", gotPath)
	assert.Equal(t, "apb", gotBody.EventType)
}

func TestSendDispatch_ClientErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "No event_type specified"}`)
	})

	client := newTestClient(t, handler)
	err := client.SendDispatch(context.Background(), "example/alpha", "apb")

	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestSendDispatch_TransientErrorIsRetried(t *testing.T) {
	var attempts atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(t, handler)
	err := client.SendDispatch(context.Background(), "example/alpha", "apb")

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSendDispatch_GivesUpAfterThreeAttempts(t *testing.T) {
	var attempts atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newTestClient(t, handler)
	err := client.SendDispatch(context.Background(), "example/alpha", "apb")

	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}
