package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Gateway action names.
const (
	actionSearch    = "twitter_recent_search"
	actionTimeline  = "twitter_user_timeline"
	actionPost      = "twitter_create_post"
	actionLike      = "twitter_like_post"
	actionRetweet   = "twitter_retweet_post"
	actionFollow    = "twitter_follow_user"
	actionTrends    = "twitter_get_trends"
	actionUserInfo  = "twitter_get_user"
	actionTweet     = "twitter_get_tweet"
	actionFollowers = "twitter_get_followers"
	actionFollowing = "twitter_get_following"
)

// EnhancedConfig configures the action-gateway client.
type EnhancedConfig struct {
	BaseURL     string
	APIKey      string
	EntityID    string
	MinInterval time.Duration
	Timeout     time.Duration
}

// Enhanced calls Twitter through an action gateway that wraps each operation
// as a named action with structured input and output.
type Enhanced struct {
	baseURL    string
	apiKey     string
	entityID   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewEnhanced creates an action-gateway client.
func NewEnhanced(cfg EnhancedConfig) *Enhanced {
	if cfg.EntityID == "" {
		cfg.EntityID = "default"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return &Enhanced{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		entityID:   cfg.EntityID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}
}

// Name returns the client identifier.
func (e *Enhanced) Name() string {
	return "enhanced"
}

// SearchTweets returns recent tweets matching a query.
func (e *Enhanced) SearchTweets(ctx context.Context, query string, maxResults int) ([]Tweet, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidParameters)
	}
	if maxResults < 1 {
		maxResults = 10
	}

	var out struct {
		Tweets []apiTweet `json:"tweets"`
	}
	input := map[string]any{"query": query, "max_results": maxResults}
	if err := e.execute(ctx, actionSearch, input, &out); err != nil {
		return nil, fmt.Errorf("searching tweets: %w", err)
	}
	return convertTweets(out.Tweets), nil
}

// GetUserTimeline returns a user's recent tweets.
func (e *Enhanced) GetUserTimeline(ctx context.Context, username string, maxTweets int) ([]Tweet, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidParameters)
	}
	if maxTweets < 1 {
		maxTweets = 10
	}

	var out struct {
		Tweets []apiTweet `json:"tweets"`
	}
	input := map[string]any{"username": username, "max_results": maxTweets}
	if err := e.execute(ctx, actionTimeline, input, &out); err != nil {
		return nil, fmt.Errorf("fetching timeline for %s: %w", username, err)
	}
	return convertTweets(out.Tweets), nil
}

// PostTweet publishes a tweet.
func (e *Enhanced) PostTweet(ctx context.Context, text string) (*Tweet, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: tweet text cannot be empty", ErrInvalidParameters)
	}
	if len(text) > 280 {
		return nil, fmt.Errorf("%w: tweet text exceeds 280 characters", ErrInvalidParameters)
	}

	var out struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	if err := e.execute(ctx, actionPost, map[string]any{"text": text}, &out); err != nil {
		return nil, fmt.Errorf("posting tweet: %w", err)
	}
	return &Tweet{ID: out.ID, Text: out.Text, CreatedAt: time.Now().UTC()}, nil
}

// LikeTweet likes a tweet by ID.
func (e *Enhanced) LikeTweet(ctx context.Context, tweetID string) error {
	if tweetID == "" {
		return fmt.Errorf("%w: tweet id cannot be empty", ErrInvalidParameters)
	}
	if err := e.execute(ctx, actionLike, map[string]any{"tweet_id": tweetID}, nil); err != nil {
		return fmt.Errorf("liking tweet %s: %w", tweetID, err)
	}
	return nil
}

// Retweet reposts a tweet by ID.
func (e *Enhanced) Retweet(ctx context.Context, tweetID string) error {
	if tweetID == "" {
		return fmt.Errorf("%w: tweet id cannot be empty", ErrInvalidParameters)
	}
	if err := e.execute(ctx, actionRetweet, map[string]any{"tweet_id": tweetID}, nil); err != nil {
		return fmt.Errorf("retweeting %s: %w", tweetID, err)
	}
	return nil
}

// FollowUser follows a user by username.
func (e *Enhanced) FollowUser(ctx context.Context, username string) error {
	if username == "" {
		return fmt.Errorf("%w: username cannot be empty", ErrInvalidParameters)
	}
	if err := e.execute(ctx, actionFollow, map[string]any{"username": username}, nil); err != nil {
		return fmt.Errorf("following %s: %w", username, err)
	}
	return nil
}

// GetTrends returns trending topics for a WOEID location.
func (e *Enhanced) GetTrends(ctx context.Context, woeid int) ([]Trend, error) {
	if woeid <= 0 {
		woeid = 1
	}

	var out struct {
		Trends []struct {
			Name        string `json:"name"`
			URL         string `json:"url"`
			TweetVolume int    `json:"tweet_volume"`
		} `json:"trends"`
	}
	if err := e.execute(ctx, actionTrends, map[string]any{"woeid": woeid}, &out); err != nil {
		return nil, fmt.Errorf("fetching trends for woeid %d: %w", woeid, err)
	}

	trends := make([]Trend, len(out.Trends))
	for i, tr := range out.Trends {
		trends[i] = Trend{Name: tr.Name, URL: tr.URL, TweetCount: tr.TweetVolume}
	}
	return trends, nil
}

// GetUserInfo returns a user's profile.
func (e *Enhanced) GetUserInfo(ctx context.Context, username string) (*UserInfo, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidParameters)
	}

	var out apiUser
	if err := e.execute(ctx, actionUserInfo, map[string]any{"username": username}, &out); err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", username, err)
	}
	users := convertUsers([]apiUser{out})
	return &users[0], nil
}

// GetTweetByID returns a single tweet.
func (e *Enhanced) GetTweetByID(ctx context.Context, tweetID string) (*Tweet, error) {
	if tweetID == "" {
		return nil, fmt.Errorf("%w: tweet id cannot be empty", ErrInvalidParameters)
	}

	var out apiTweet
	if err := e.execute(ctx, actionTweet, map[string]any{"tweet_id": tweetID}, &out); err != nil {
		return nil, fmt.Errorf("fetching tweet %s: %w", tweetID, err)
	}
	tweets := convertTweets([]apiTweet{out})
	return &tweets[0], nil
}

// GetFollowers returns accounts following a user.
func (e *Enhanced) GetFollowers(ctx context.Context, username string, maxResults int) ([]UserInfo, error) {
	return e.connections(ctx, actionFollowers, username, maxResults)
}

// GetFollowing returns accounts a user follows.
func (e *Enhanced) GetFollowing(ctx context.Context, username string, maxResults int) ([]UserInfo, error) {
	return e.connections(ctx, actionFollowing, username, maxResults)
}

func (e *Enhanced) connections(ctx context.Context, action, username string, maxResults int) ([]UserInfo, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidParameters)
	}
	if maxResults < 1 {
		maxResults = 100
	}

	var out struct {
		Users []apiUser `json:"users"`
	}
	input := map[string]any{"username": username, "max_results": maxResults}
	if err := e.execute(ctx, action, input, &out); err != nil {
		return nil, fmt.Errorf("%s for %s: %w", action, username, err)
	}
	return convertUsers(out.Users), nil
}

// execute posts one action to the gateway and decodes its data payload.
func (e *Enhanced) execute(ctx context.Context, action string, input map[string]any, out any) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"entity_id": e.entityID,
		"input":     input,
	})
	if err != nil {
		return err
	}

	endpoint := e.baseURL + "/v1/actions/" + action + "/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return errorFromStatus(resp.StatusCode, string(data))
	}

	var result struct {
		Successful bool            `json:"successful"`
		Data       json.RawMessage `json:"data"`
		Error      string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if !result.Successful {
		return errorFromMessage(result.Error)
	}
	if out == nil || len(result.Data) == 0 {
		return nil
	}
	return json.Unmarshal(result.Data, out)
}

// errorFromMessage classifies a gateway-reported failure by its message.
func errorFromMessage(msg string) error {
	if msg == "" {
		msg = "action failed without detail"
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit"):
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "forbidden"),
		strings.Contains(lower, "authentication"):
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "not found"):
		return fmt.Errorf("%w: %s", ErrInvalidParameters, msg)
	case strings.Contains(lower, "unavailable"), strings.Contains(lower, "timeout"):
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	default:
		return fmt.Errorf("action failed: %s", msg)
	}
}
