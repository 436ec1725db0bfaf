package agents

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cynix/models"
	"cynix/services"
	"cynix/utils"
)

const (
	infyTweetSample   = 100
	maxVerifiedAddrs  = 10
	addrLookupWorkers = 4
)

var base58Candidate = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)

// Infy scores an influencer's trustworthiness from their posts and the
// contract addresses they promote.
type Infy struct {
	social services.TimelineSource
	chain  services.HistorySource
	model  Generator
	now    func() time.Time
	logger *zap.Logger
}

func NewInfy(social services.TimelineSource, chain services.HistorySource, model Generator, logger *zap.Logger) *Infy {
	return &Infy{
		social: social,
		chain:  chain,
		model:  model,
		now:    time.Now,
		logger: logger.Named("infy"),
	}
}

func (i *Infy) Run(ctx context.Context, req models.InfluencerAnalysisRequest) models.AnalysisEnvelope {
	return run(ctx, InfyAgentType, i.logger, func(ctx context.Context) (*models.InfluencerAnalysisResult, error) {
		return i.Analyze(ctx, req)
	})
}

func (i *Infy) Analyze(ctx context.Context, req models.InfluencerAnalysisRequest) (*models.InfluencerAnalysisResult, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(req.TwitterHandle), "@")
	if handle == "" {
		return nil, models.NewAppError(models.ErrBadRequest, "missing twitter_handle")
	}

	timeline, err := i.social.GetTimeline(ctx, handle, infyTweetSample)
	if err != nil {
		return nil, fmt.Errorf("twitter: %w", err)
	}

	texts := make([]string, 0, len(timeline.Tweets))
	for _, t := range timeline.Tweets {
		texts = append(texts, t.Text)
	}

	style := AnalyzeWritingStyle(texts)
	verification, err := i.verifyAddresses(ctx, ExtractAddresses(texts), req.KnownAddresses)
	if err != nil {
		return nil, err
	}
	engagement := EngagementOf(timeline, i.now())

	result := &models.InfluencerAnalysisResult{
		TrustScore:        TrustScore(engagement, style, verification),
		WritingStyle:      style,
		CAVerification:    verification,
		EngagementMetrics: engagement,
	}
	result.ModelAnalysis = commentary(ctx, i.model, i.logger, influencerPrompt(handle, result), 384, 0.5)
	return result, nil
}

// AnalyzeWritingStyle measures post length, vocabulary and how much the
// sentiment swings between posts.
func AnalyzeWritingStyle(texts []string) models.WritingStyle {
	style := models.WritingStyle{CommonPhrases: utils.CommonPhrases(texts, 10)}
	if style.CommonPhrases == nil {
		style.CommonPhrases = []string{}
	}
	if len(texts) == 0 {
		return style
	}

	lengths := make([]float64, 0, len(texts))
	polarity := make([]float64, 0, len(texts))
	for _, t := range texts {
		lengths = append(lengths, float64(utf8.RuneCountInString(t)))
		polarity = append(polarity, utils.Polarity(t))
	}

	style.AvgTweetLength = utils.Round2(utils.Mean(lengths))
	style.VocabDiversity = utils.Round2(utils.VocabDiversity(texts))
	style.SentimentConsistency = utils.Round2(utils.StdDev(polarity))
	return style
}

// ExtractAddresses returns the distinct valid base58 account addresses
// mentioned in texts, in order of first mention.
func ExtractAddresses(texts []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range texts {
		for _, candidate := range base58Candidate.FindAllString(t, -1) {
			if seen[candidate] || !utils.IsValidAddress(candidate) {
				continue
			}
			seen[candidate] = true
			out = append(out, candidate)
		}
	}
	return out
}

func (i *Infy) verifyAddresses(ctx context.Context, addresses, known []string) (models.CAVerification, error) {
	verification := models.CAVerification{VerifiedAddresses: []models.VerifiedAddress{}}
	if len(addresses) > maxVerifiedAddrs {
		addresses = addresses[:maxVerifiedAddrs]
	}
	if len(addresses) == 0 {
		return verification, nil
	}

	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	// each goroutine writes only its own slot
	verified := make([]models.VerifiedAddress, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(addrLookupWorkers)
	for idx, addr := range addresses {
		g.Go(func() error {
			h, err := i.chain.GetAccountHistory(gctx, addr)
			if err != nil {
				return fmt.Errorf("account history %s: %w", addr, err)
			}
			verified[idx] = models.VerifiedAddress{
				Address:          addr,
				TransactionCount: h.TransactionCount,
				IsContract:       h.IsContract,
				FirstSeen:        h.FirstSeen,
				IsKnown:          knownSet[addr],
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return verification, err
	}

	matches := 0
	for _, v := range verified {
		if v.IsKnown {
			matches++
		}
	}
	verification.VerifiedAddresses = verified
	verification.KnownAddressMatchRate = utils.Round2(float64(matches) / float64(len(verified)))
	return verification, nil
}

// EngagementOf averages interactions over the sampled posts.
// EngagementRate is average interactions per post divided by followers.
func EngagementOf(tl *models.TwitterTimeline, now time.Time) models.EngagementMetrics {
	m := models.EngagementMetrics{
		Followers:      tl.User.Followers,
		TweetsAnalyzed: len(tl.Tweets),
	}
	if !tl.User.CreatedAt.IsZero() {
		m.AccountAgeDays = max(0, int(now.Sub(tl.User.CreatedAt).Hours()/24))
	}
	if len(tl.Tweets) == 0 {
		return m
	}

	var likes, retweets, replies int
	for _, t := range tl.Tweets {
		likes += t.Likes
		retweets += t.Retweets
		replies += t.Replies
	}
	n := float64(len(tl.Tweets))
	m.AvgLikes = utils.Round2(float64(likes) / n)
	m.AvgRetweets = utils.Round2(float64(retweets) / n)
	m.AvgReplies = utils.Round2(float64(replies) / n)
	if tl.User.Followers > 0 {
		m.EngagementRate = float64(likes+retweets+replies) / n / float64(tl.User.Followers)
		m.EngagementRate = math.Round(m.EngagementRate*10000) / 10000
	}
	return m
}

// TrustScore combines, on a 0..100 scale:
//
//	0.20 account age     (saturates at one year)
//	0.30 engagement      (saturates at a 5% engagement rate)
//	0.25 style stability (1 - sentiment standard deviation)
//	0.25 known contract match rate
func TrustScore(e models.EngagementMetrics, s models.WritingStyle, v models.CAVerification) float64 {
	age := min(float64(e.AccountAgeDays)/365, 1)
	engagement := min(e.EngagementRate/0.05, 1)
	stability := utils.Clamp(1-s.SentimentConsistency, 0, 1)
	return utils.Round2(100 * (0.2*age + 0.3*engagement + 0.25*stability + 0.25*v.KnownAddressMatchRate))
}

func influencerPrompt(handle string, r *models.InfluencerAnalysisResult) string {
	return fmt.Sprintf(`Assess the credibility of the crypto influencer @%s:
Followers: %d
Account age (days): %d
Engagement rate: %.4f
Sentiment variability: %.2f
Promoted contracts checked: %d
Known contract match rate: %.2f

Summarize their reliability as a source of alpha.`,
		handle, r.EngagementMetrics.Followers, r.EngagementMetrics.AccountAgeDays,
		r.EngagementMetrics.EngagementRate, r.WritingStyle.SentimentConsistency,
		len(r.CAVerification.VerifiedAddresses), r.CAVerification.KnownAddressMatchRate)
}
