package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cynix/models"
	"cynix/services"
	"cynix/utils"
)

// auraTweetSample is how many recent tweets feed the alpha estimate.
const auraTweetSample = 100

// Aura scores a code project from its repository, its social account and
// its contract's on-chain history.
type Aura struct {
	repos  services.RepoSource
	social services.TimelineSource
	chain  services.HistorySource
	model  Generator
	logger *zap.Logger
}

func NewAura(repos services.RepoSource, social services.TimelineSource, chain services.HistorySource, model Generator, logger *zap.Logger) *Aura {
	return &Aura{
		repos:  repos,
		social: social,
		chain:  chain,
		model:  model,
		logger: logger.Named("aura"),
	}
}

func (a *Aura) Run(ctx context.Context, req models.CodeAnalysisRequest) models.AnalysisEnvelope {
	return run(ctx, AuraAgentType, a.logger, func(ctx context.Context) (*models.CodeAnalysisResult, error) {
		return a.Analyze(ctx, req)
	})
}

// Analyze fetches the three sources concurrently. The repository is
// required; the Twitter handle and contract address are optional.
func (a *Aura) Analyze(ctx context.Context, req models.CodeAnalysisRequest) (*models.CodeAnalysisResult, error) {
	owner, repo, ok := services.ParseRepoURL(req.GitHubURL)
	if !ok {
		return nil, models.NewAppError(models.ErrBadRequest, "invalid github_url")
	}

	var (
		snapshot *models.RepoSnapshot
		timeline *models.TwitterTimeline
		history  *models.AccountHistory
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapshot, err = a.repos.GetRepoSnapshot(gctx, owner, repo)
		if err != nil {
			return fmt.Errorf("github: %w", err)
		}
		return nil
	})
	if handle := strings.TrimPrefix(strings.TrimSpace(req.TwitterHandle), "@"); handle != "" {
		g.Go(func() error {
			var err error
			timeline, err = a.social.GetTimeline(gctx, handle, auraTweetSample)
			if err != nil {
				return fmt.Errorf("twitter: %w", err)
			}
			return nil
		})
	}
	if req.ContractAddress != "" {
		g.Go(func() error {
			var err error
			history, err = a.chain.GetAccountHistory(gctx, req.ContractAddress)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quality := CodeQualityOf(snapshot)
	alpha := AlphaPotential(timeline)
	result := &models.CodeAnalysisResult{
		ProjectValueScore: ProjectValueScore(quality, history, alpha),
		CodeQuality:       quality,
		CAReliability:     history,
		AlphaPotential:    utils.Round2(alpha),
	}
	result.ModelAnalysis = commentary(ctx, a.model, a.logger, codePrompt(snapshot, quality), 512, 0.3)
	return result, nil
}

// CodeQualityOf derives the repository sub-scores, each in [0, 1].
func CodeQualityOf(s *models.RepoSnapshot) models.CodeQuality {
	commitFrequency := float64(s.CommitCount) / 30 // per day over the last 30 days
	return models.CodeQuality{
		CommitActivityScore: min(commitFrequency/10, 1),
		CommunityEngagement: min(float64(s.OpenIssues)/100, 1),
		Popularity:          min(float64(s.Stars)/1000, 1),
		ReleaseMaturity:     utils.ReleaseMaturity(s.LatestRelease),
		LatestRelease:       s.LatestRelease,
	}
}

// AlphaPotential is recent likes plus retweets per follower, as a
// percentage capped at 100. No timeline or no followers scores 0.
func AlphaPotential(tl *models.TwitterTimeline) float64 {
	if tl == nil || tl.User.Followers == 0 {
		return 0
	}
	var interactions int
	for _, t := range tl.Tweets {
		interactions += t.Likes + t.Retweets
	}
	return min(float64(interactions)/float64(tl.User.Followers)*100, 100)
}

// ContractReliability is 0 for a missing account, otherwise 0.5 plus up to
// 0.5 for transaction volume (saturating at 1000 signatures).
func ContractReliability(h *models.AccountHistory) float64 {
	if h == nil || !h.Exists {
		return 0
	}
	return 0.5 + 0.5*min(float64(h.TransactionCount)/1000, 1)
}

// ProjectValueScore weighs code quality (40), contract reliability (30)
// and social alpha (30) into a 0..100 score.
func ProjectValueScore(q models.CodeQuality, h *models.AccountHistory, alpha float64) float64 {
	code := utils.Mean([]float64{q.CommitActivityScore, q.CommunityEngagement, q.Popularity, q.ReleaseMaturity})
	return utils.Round2(40*code + 30*ContractReliability(h) + 0.3*alpha)
}

func codePrompt(s *models.RepoSnapshot, q models.CodeQuality) string {
	return fmt.Sprintf(`Analyze the following GitHub repository metrics and assess code quality:
Repository: %s
Language: %s
Stars: %d
Open issues: %d
Commits in the last 30 days: %d
Latest release: %s
Commit activity score: %.2f

Provide a short assessment of development activity, community health and risks.`,
		s.FullName, s.Language, s.Stars, s.OpenIssues, s.CommitCount, s.LatestRelease, q.CommitActivityScore)
}
