package models

import "time"

// AnalysisEnvelope wraps every analyzer response.
type AnalysisEnvelope struct {
	Status    string    `json:"status"`
	AgentType string    `json:"agent_type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type CodeAnalysisRequest struct {
	GitHubURL       string `json:"github_url"`
	TwitterHandle   string `json:"twitter_handle"`
	ContractAddress string `json:"contract_address"`
}

type MemeAnalysisRequest struct {
	ImageURL string `json:"image_url"`
}

type InfluencerAnalysisRequest struct {
	TwitterHandle  string   `json:"twitter_handle"`
	KnownAddresses []string `json:"known_addresses"`
}

// ============================================
// Upstream source data
// ============================================

type RepoSnapshot struct {
	FullName      string    `json:"full_name"`
	Description   string    `json:"description,omitempty"`
	Language      string    `json:"language,omitempty"`
	Stars         int       `json:"stargazers_count"`
	Forks         int       `json:"forks_count"`
	OpenIssues    int       `json:"open_issues_count"`
	CommitCount   int       `json:"commit_count"` // last 30 days
	LatestRelease string    `json:"latest_release,omitempty"`
	PushedAt      time.Time `json:"pushed_at"`
}

type TwitterUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Followers int       `json:"followers_count"`
	Following int       `json:"following_count"`
	Tweets    int       `json:"tweet_count"`
}

type Tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Likes     int       `json:"like_count"`
	Retweets  int       `json:"retweet_count"`
	Replies   int       `json:"reply_count"`
}

type TwitterTimeline struct {
	User   TwitterUser `json:"user"`
	Tweets []Tweet     `json:"tweets"`
}

type ImageLabel struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// SafetyScores hold safe-search likelihoods on a 0 (unknown) to 5 (very likely) scale.
type SafetyScores struct {
	Adult    int `json:"adult"`
	Violence int `json:"violence"`
	Spoof    int `json:"spoof"`
}

type ImageAnalysis struct {
	Labels       []ImageLabel `json:"labels"`
	SafetyScores SafetyScores `json:"safety_scores"`
}

type ReverseSearchResult struct {
	Matches []ImageMatch `json:"matches"`
}

type ImageMatch struct {
	URL   string  `json:"url"`
	Score float64 `json:"score,omitempty"`
}

// ============================================
// Analyzer results
// ============================================

type CodeQuality struct {
	CommitActivityScore float64 `json:"commit_activity_score"`
	CommunityEngagement float64 `json:"community_engagement"`
	Popularity          float64 `json:"popularity"`
	ReleaseMaturity     float64 `json:"release_maturity"`
	LatestRelease       string  `json:"latest_release,omitempty"`
}

type CodeAnalysisResult struct {
	ProjectValueScore float64         `json:"project_value_score"`
	CodeQuality       CodeQuality     `json:"code_quality"`
	CAReliability     *AccountHistory `json:"ca_reliability"`
	AlphaPotential    float64         `json:"alpha_potential"`
	ModelAnalysis     string          `json:"model_analysis,omitempty"`
}

type MemeAnalysisResult struct {
	ImageHash        string        `json:"image_hash"`
	IsOriginal       bool          `json:"is_original"`
	OriginalityScore float64       `json:"originality_score"`
	AlphaScore       float64       `json:"alpha_score"`
	SimilarImages    []ImageMatch  `json:"similar_images"`
	ContentAnalysis  ImageAnalysis `json:"content_analysis"`
	ModelAnalysis    string        `json:"model_analysis,omitempty"`
}

type WritingStyle struct {
	AvgTweetLength       float64  `json:"avg_tweet_length"`
	VocabDiversity       float64  `json:"vocab_diversity"`
	SentimentConsistency float64  `json:"sentiment_consistency"`
	CommonPhrases        []string `json:"common_phrases"`
}

type VerifiedAddress struct {
	Address          string `json:"address"`
	TransactionCount int    `json:"transaction_count"`
	IsContract       bool   `json:"is_contract"`
	FirstSeen        *int64 `json:"first_seen"`
	IsKnown          bool   `json:"is_known"`
}

type CAVerification struct {
	VerifiedAddresses     []VerifiedAddress `json:"verified_addresses"`
	KnownAddressMatchRate float64           `json:"known_address_match_rate"`
}

type EngagementMetrics struct {
	Followers      int     `json:"followers"`
	AvgLikes       float64 `json:"avg_likes"`
	AvgRetweets    float64 `json:"avg_retweets"`
	AvgReplies     float64 `json:"avg_replies"`
	EngagementRate float64 `json:"engagement_rate"`
	TweetsAnalyzed int     `json:"tweets_analyzed"`
	AccountAgeDays int     `json:"account_age_days"`
}

type InfluencerAnalysisResult struct {
	TrustScore        float64           `json:"trust_score"`
	WritingStyle      WritingStyle      `json:"writing_style_analysis"`
	CAVerification    CAVerification    `json:"ca_verification"`
	EngagementMetrics EngagementMetrics `json:"engagement_metrics"`
	ModelAnalysis     string            `json:"model_analysis,omitempty"`
}
