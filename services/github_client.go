package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"cynix/config"
	"cynix/models"
	"cynix/utils"
)

const (
	commitWindow   = 30 * 24 * time.Hour
	maxCommitPages = 10
)

// GitHubClient loads repository snapshots through the REST API.
type GitHubClient struct {
	client *github.Client
	now    func() time.Time
	logger *zap.Logger
}

func NewGitHubClient(cfg config.GitHubConfig, logger *zap.Logger) (*GitHubClient, error) {
	client := github.NewClient(&http.Client{Timeout: 30 * time.Second})
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = u
	}
	return &GitHubClient{client: client, now: time.Now, logger: logger}, nil
}

// GetRepoSnapshot returns repository metadata, the commit count for the last
// 30 days and the latest release tag.
func (g *GitHubClient) GetRepoSnapshot(ctx context.Context, owner, repo string) (*models.RepoSnapshot, error) {
	r, _, err := g.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}

	snapshot := &models.RepoSnapshot{
		FullName:    r.GetFullName(),
		Description: r.GetDescription(),
		Language:    r.GetLanguage(),
		Stars:       r.GetStargazersCount(),
		Forks:       r.GetForksCount(),
		OpenIssues:  r.GetOpenIssuesCount(),
		PushedAt:    r.GetPushedAt().Time,
	}

	commits, err := g.countCommits(ctx, owner, repo, g.now().Add(-commitWindow))
	if err != nil {
		return nil, err
	}
	snapshot.CommitCount = commits

	release, err := g.latestRelease(ctx, owner, repo)
	if err != nil {
		// release data is optional
		g.logger.Debug("No release information",
			zap.String("repo", snapshot.FullName),
			zap.Error(err))
	}
	snapshot.LatestRelease = release

	return snapshot, nil
}

func (g *GitHubClient) countCommits(ctx context.Context, owner, repo string, since time.Time) (int, error) {
	opts := &github.CommitsListOptions{
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	total := 0
	for page := 0; page < maxCommitPages; page++ {
		commits, resp, err := g.client.Repositories.ListCommits(ctx, owner, repo, opts)
		if err != nil {
			// empty repositories answer 409
			var ghErr *github.ErrorResponse
			if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusConflict {
				return 0, nil
			}
			return 0, fmt.Errorf("list commits %s/%s: %w", owner, repo, err)
		}
		total += len(commits)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return total, nil
}

// latestRelease prefers the published latest release and falls back to the
// highest semantic version tag.
func (g *GitHubClient) latestRelease(ctx context.Context, owner, repo string) (string, error) {
	release, _, err := g.client.Repositories.GetLatestRelease(ctx, owner, repo)
	if err == nil && release.GetTagName() != "" {
		return release.GetTagName(), nil
	}

	tags, _, tagErr := g.client.Repositories.ListTags(ctx, owner, repo, &github.ListOptions{PerPage: 100})
	if tagErr != nil {
		return "", fmt.Errorf("list tags %s/%s: %w", owner, repo, tagErr)
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.GetName())
	}
	return utils.LatestTag(names), nil
}
