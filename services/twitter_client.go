package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cynix/config"
	"cynix/models"
)

// TweetLimit is the maximum length of one post.
const TweetLimit = 280

// TwitterClient reads timelines with an app token and posts with a user token.
type TwitterClient struct {
	baseURL     string
	bearerToken string
	userToken   string
	httpClient  *http.Client
	postLimiter *rate.Limiter
	logger      *zap.Logger
}

func NewTwitterClient(cfg config.TwitterConfig, logger *zap.Logger) *TwitterClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.twitter.com"
	}
	return &TwitterClient{
		baseURL:     base,
		bearerToken: cfg.BearerToken,
		userToken:   cfg.UserToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		// one post per second, so replies land in order
		postLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:      logger,
	}
}

// Enabled reports whether posting is configured.
func (c *TwitterClient) Enabled() bool {
	return c.userToken != ""
}

type twitterError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type twitterPublicMetrics struct {
	Followers int `json:"followers_count"`
	Following int `json:"following_count"`
	Tweets    int `json:"tweet_count"`
	Likes     int `json:"like_count"`
	Retweets  int `json:"retweet_count"`
	Replies   int `json:"reply_count"`
}

type twitterUserResponse struct {
	Data *struct {
		ID            string               `json:"id"`
		Username      string               `json:"username"`
		Name          string               `json:"name"`
		CreatedAt     time.Time            `json:"created_at"`
		PublicMetrics twitterPublicMetrics `json:"public_metrics"`
	} `json:"data"`
	Errors []twitterError `json:"errors"`
}

type twitterTweetsResponse struct {
	Data []struct {
		ID            string               `json:"id"`
		Text          string               `json:"text"`
		CreatedAt     time.Time            `json:"created_at"`
		PublicMetrics twitterPublicMetrics `json:"public_metrics"`
	} `json:"data"`
	Errors []twitterError `json:"errors"`
}

func (c *TwitterClient) do(ctx context.Context, method, path string, token string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twitter request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twitter %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetTimeline loads the user and up to limit of their most recent tweets.
func (c *TwitterClient) GetTimeline(ctx context.Context, handle string, limit int) (*models.TwitterTimeline, error) {
	if c.bearerToken == "" {
		return nil, fmt.Errorf("twitter bearer token not configured")
	}
	handle = strings.TrimPrefix(handle, "@")

	var userResp twitterUserResponse
	path := "/2/users/by/username/" + url.PathEscape(handle) + "?user.fields=created_at,public_metrics"
	if err := c.do(ctx, http.MethodGet, path, c.bearerToken, nil, &userResp); err != nil {
		return nil, err
	}
	if userResp.Data == nil {
		msg := "user not found"
		if len(userResp.Errors) > 0 {
			msg = userResp.Errors[0].Detail
		}
		return nil, fmt.Errorf("twitter user %s: %s", handle, msg)
	}

	u := userResp.Data
	timeline := &models.TwitterTimeline{
		User: models.TwitterUser{
			ID:        u.ID,
			Username:  u.Username,
			Name:      u.Name,
			CreatedAt: u.CreatedAt,
			Followers: u.PublicMetrics.Followers,
			Following: u.PublicMetrics.Following,
			Tweets:    u.PublicMetrics.Tweets,
		},
		Tweets: []models.Tweet{},
	}

	// the API accepts 5..100
	limit = min(max(limit, 5), 100)
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(limit))
	q.Set("tweet.fields", "created_at,public_metrics")

	var tweetsResp twitterTweetsResponse
	if err := c.do(ctx, http.MethodGet, "/2/users/"+url.PathEscape(u.ID)+"/tweets?"+q.Encode(), c.bearerToken, nil, &tweetsResp); err != nil {
		return nil, err
	}
	for _, tw := range tweetsResp.Data {
		timeline.Tweets = append(timeline.Tweets, models.Tweet{
			ID:        tw.ID,
			Text:      tw.Text,
			CreatedAt: tw.CreatedAt,
			Likes:     tw.PublicMetrics.Likes,
			Retweets:  tw.PublicMetrics.Retweets,
			Replies:   tw.PublicMetrics.Replies,
		})
	}
	return timeline, nil
}

// PostThread posts parts in order, each replying to the previous one.
// It returns the ids of the posted tweets.
func (c *TwitterClient) PostThread(ctx context.Context, parts []string) ([]string, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("twitter posting not configured")
	}

	ids := make([]string, 0, len(parts))
	replyTo := ""
	for _, part := range parts {
		if err := c.postLimiter.Wait(ctx); err != nil {
			return ids, err
		}

		body := map[string]any{"text": part}
		if replyTo != "" {
			body["reply"] = map[string]string{"in_reply_to_tweet_id": replyTo}
		}

		var resp struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := c.do(ctx, http.MethodPost, "/2/tweets", c.userToken, body, &resp); err != nil {
			return ids, err
		}
		ids = append(ids, resp.Data.ID)
		replyTo = resp.Data.ID
	}

	c.logger.Info("Posted thread", zap.Int("tweets", len(ids)))
	return ids, nil
}

// SplitThread breaks text into posts of at most limit runes on word boundaries.
func SplitThread(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			parts = append(parts, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		r := []rune(word)
		// words longer than a post are hard-wrapped
		for len(r) > limit {
			flush()
			parts = append(parts, string(r[:limit]))
			r = r[limit:]
		}
		wlen := len(r)
		if wlen == 0 {
			continue
		}

		sep := 0
		if currentLen > 0 {
			sep = 1
		}
		if currentLen+sep+wlen > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			current.WriteByte(' ')
		}
		current.WriteString(string(r))
		currentLen += sep + wlen
	}
	flush()
	return parts
}
