package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cynix/config"
)

func TestGitHubClientSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/cynix/core", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"full_name":         "cynix/core",
			"language":          "Go",
			"stargazers_count":  1500,
			"forks_count":       12,
			"open_issues_count": 40,
			"pushed_at":         "2024-03-01T10:00:00Z",
		})
	})
	mux.HandleFunc("/repos/cynix/core/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		commits := make([]map[string]any, 45)
		for i := range commits {
			commits[i] = map[string]any{"sha": "abc"}
		}
		_ = json.NewEncoder(w).Encode(commits)
	})
	mux.HandleFunc("/repos/cynix/core/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/repos/cynix/core/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"name": "v0.9.0"}, {"name": "v1.2.0"}, {"name": "nightly"}, {"name": "v1.10.0-rc1"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewGitHubClient(config.GitHubConfig{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	client.now = func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) }

	snap, err := client.GetRepoSnapshot(context.Background(), "cynix", "core")
	require.NoError(t, err)
	assert.Equal(t, "cynix/core", snap.FullName)
	assert.Equal(t, 1500, snap.Stars)
	assert.Equal(t, 40, snap.OpenIssues)
	assert.Equal(t, 45, snap.CommitCount)
	assert.Equal(t, "v1.10.0-rc1", snap.LatestRelease)
}

func TestGitHubClientMissingRepo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewGitHubClient(config.GitHubConfig{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	_, err = client.GetRepoSnapshot(context.Background(), "cynix", "missing")
	assert.Error(t, err)
}
