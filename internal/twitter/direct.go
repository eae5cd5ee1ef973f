package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// DefaultDirectBaseURL is the Twitter API host.
const DefaultDirectBaseURL = "https://api.twitter.com"

// DirectConfig configures the direct API client.
type DirectConfig struct {
	BaseURL     string
	BearerToken string
	// UserID is the authenticated account, required for likes, retweets and
	// follows.
	UserID string
	// MinInterval spaces consecutive requests to stay under the API rate
	// limits. Zero disables client-side throttling.
	MinInterval time.Duration
	Timeout     time.Duration
}

// Direct calls the Twitter API directly.
type Direct struct {
	baseURL    string
	token      string
	userID     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewDirect creates a direct API client.
func NewDirect(cfg DirectConfig) *Direct {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDirectBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return &Direct{
		baseURL:    cfg.BaseURL,
		token:      cfg.BearerToken,
		userID:     cfg.UserID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}
}

// Name returns the client identifier.
func (d *Direct) Name() string {
	return "direct"
}

// SearchTweets returns recent tweets matching a query.
func (d *Direct) SearchTweets(ctx context.Context, query string, maxResults int) ([]Tweet, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidParameters)
	}
	if maxResults < 1 {
		maxResults = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("tweet.fields", "created_at,author_id,public_metrics")

	var out struct {
		Data []apiTweet `json:"data"`
	}
	if err := d.get(ctx, "/2/tweets/search/recent?"+params.Encode(), &out); err != nil {
		return nil, fmt.Errorf("searching tweets: %w", err)
	}
	return convertTweets(out.Data), nil
}

// GetUserTimeline returns a user's recent tweets.
func (d *Direct) GetUserTimeline(ctx context.Context, username string, maxTweets int) ([]Tweet, error) {
	info, err := d.GetUserInfo(ctx, username)
	if err != nil {
		return nil, err
	}
	if maxTweets < 1 {
		maxTweets = 10
	}

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(maxTweets))
	params.Set("tweet.fields", "created_at,author_id,public_metrics")

	var out struct {
		Data []apiTweet `json:"data"`
	}
	if err := d.get(ctx, "/2/users/"+info.ID+"/tweets?"+params.Encode(), &out); err != nil {
		return nil, fmt.Errorf("fetching timeline for %s: %w", username, err)
	}
	return convertTweets(out.Data), nil
}

// PostTweet publishes a tweet.
func (d *Direct) PostTweet(ctx context.Context, text string) (*Tweet, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: tweet text cannot be empty", ErrInvalidParameters)
	}
	if len(text) > 280 {
		return nil, fmt.Errorf("%w: tweet text exceeds 280 characters", ErrInvalidParameters)
	}

	var out struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := d.post(ctx, "/2/tweets", map[string]any{"text": text}, &out); err != nil {
		return nil, fmt.Errorf("posting tweet: %w", err)
	}
	return &Tweet{ID: out.Data.ID, Text: out.Data.Text, CreatedAt: time.Now().UTC()}, nil
}

// LikeTweet likes a tweet on behalf of the configured user.
func (d *Direct) LikeTweet(ctx context.Context, tweetID string) error {
	if tweetID == "" {
		return fmt.Errorf("%w: tweet id cannot be empty", ErrInvalidParameters)
	}
	if d.userID == "" {
		return fmt.Errorf("%w: user id not configured", ErrUnauthorized)
	}
	if err := d.post(ctx, "/2/users/"+d.userID+"/likes", map[string]any{"tweet_id": tweetID}, nil); err != nil {
		return fmt.Errorf("liking tweet %s: %w", tweetID, err)
	}
	return nil
}

// Retweet reposts a tweet on behalf of the configured user.
func (d *Direct) Retweet(ctx context.Context, tweetID string) error {
	if tweetID == "" {
		return fmt.Errorf("%w: tweet id cannot be empty", ErrInvalidParameters)
	}
	if d.userID == "" {
		return fmt.Errorf("%w: user id not configured", ErrUnauthorized)
	}
	if err := d.post(ctx, "/2/users/"+d.userID+"/retweets", map[string]any{"tweet_id": tweetID}, nil); err != nil {
		return fmt.Errorf("retweeting %s: %w", tweetID, err)
	}
	return nil
}

// FollowUser follows a user on behalf of the configured user.
func (d *Direct) FollowUser(ctx context.Context, username string) error {
	if d.userID == "" {
		return fmt.Errorf("%w: user id not configured", ErrUnauthorized)
	}
	target, err := d.GetUserInfo(ctx, username)
	if err != nil {
		return err
	}
	if err := d.post(ctx, "/2/users/"+d.userID+"/following", map[string]any{"target_user_id": target.ID}, nil); err != nil {
		return fmt.Errorf("following %s: %w", username, err)
	}
	return nil
}

// GetTrends returns trending topics for a WOEID location.
func (d *Direct) GetTrends(ctx context.Context, woeid int) ([]Trend, error) {
	if woeid <= 0 {
		woeid = 1 // worldwide
	}

	var out []struct {
		Trends []struct {
			Name        string `json:"name"`
			URL         string `json:"url"`
			TweetVolume int    `json:"tweet_volume"`
		} `json:"trends"`
	}
	if err := d.get(ctx, "/1.1/trends/place.json?id="+strconv.Itoa(woeid), &out); err != nil {
		return nil, fmt.Errorf("fetching trends for woeid %d: %w", woeid, err)
	}
	if len(out) == 0 {
		return []Trend{}, nil
	}

	trends := make([]Trend, len(out[0].Trends))
	for i, tr := range out[0].Trends {
		trends[i] = Trend{Name: tr.Name, URL: tr.URL, TweetCount: tr.TweetVolume}
	}
	return trends, nil
}

// GetUserInfo returns a user's profile.
func (d *Direct) GetUserInfo(ctx context.Context, username string) (*UserInfo, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidParameters)
	}

	var out struct {
		Data apiUser `json:"data"`
	}
	path := "/2/users/by/username/" + url.PathEscape(username) +
		"?user.fields=description,public_metrics,verified"
	if err := d.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", username, err)
	}
	users := convertUsers([]apiUser{out.Data})
	return &users[0], nil
}

// GetTweetByID returns a single tweet.
func (d *Direct) GetTweetByID(ctx context.Context, tweetID string) (*Tweet, error) {
	if tweetID == "" {
		return nil, fmt.Errorf("%w: tweet id cannot be empty", ErrInvalidParameters)
	}

	var out struct {
		Data apiTweet `json:"data"`
	}
	path := "/2/tweets/" + url.PathEscape(tweetID) + "?tweet.fields=created_at,author_id,public_metrics"
	if err := d.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("fetching tweet %s: %w", tweetID, err)
	}
	tweets := convertTweets([]apiTweet{out.Data})
	return &tweets[0], nil
}

// GetFollowers returns accounts following a user.
func (d *Direct) GetFollowers(ctx context.Context, username string, maxResults int) ([]UserInfo, error) {
	return d.connections(ctx, username, "followers", maxResults)
}

// GetFollowing returns accounts a user follows.
func (d *Direct) GetFollowing(ctx context.Context, username string, maxResults int) ([]UserInfo, error) {
	return d.connections(ctx, username, "following", maxResults)
}

func (d *Direct) connections(ctx context.Context, username, relation string, maxResults int) ([]UserInfo, error) {
	info, err := d.GetUserInfo(ctx, username)
	if err != nil {
		return nil, err
	}
	if maxResults < 1 {
		maxResults = 100
	}

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("user.fields", "description,public_metrics,verified")

	var out struct {
		Data []apiUser `json:"data"`
	}
	if err := d.get(ctx, "/2/users/"+info.ID+"/"+relation+"?"+params.Encode(), &out); err != nil {
		return nil, fmt.Errorf("fetching %s of %s: %w", relation, username, err)
	}
	return convertUsers(out.Data), nil
}

// --- HTTP plumbing ---

type apiTweet struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AuthorID      string    `json:"author_id"`
	CreatedAt     time.Time `json:"created_at"`
	PublicMetrics struct {
		Likes    int `json:"like_count"`
		Retweets int `json:"retweet_count"`
		Replies  int `json:"reply_count"`
	} `json:"public_metrics"`
}

func convertTweets(in []apiTweet) []Tweet {
	out := make([]Tweet, len(in))
	for i, t := range in {
		out[i] = Tweet{
			ID:        t.ID,
			Text:      t.Text,
			AuthorID:  t.AuthorID,
			CreatedAt: t.CreatedAt,
			Likes:     t.PublicMetrics.Likes,
			Retweets:  t.PublicMetrics.Retweets,
			Replies:   t.PublicMetrics.Replies,
		}
	}
	return out
}

type apiUser struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Username      string `json:"username"`
	Description   string `json:"description"`
	Verified      bool   `json:"verified"`
	PublicMetrics struct {
		Followers  int `json:"followers_count"`
		Following  int `json:"following_count"`
		TweetCount int `json:"tweet_count"`
	} `json:"public_metrics"`
}

func convertUsers(in []apiUser) []UserInfo {
	out := make([]UserInfo, len(in))
	for i, u := range in {
		out[i] = UserInfo{
			ID:          u.ID,
			Username:    u.Username,
			DisplayName: u.Name,
			Description: u.Description,
			Followers:   u.PublicMetrics.Followers,
			Following:   u.PublicMetrics.Following,
			TweetCount:  u.PublicMetrics.TweetCount,
			Verified:    u.Verified,
		}
	}
	return out
}

func (d *Direct) get(ctx context.Context, path string, out any) error {
	return d.do(ctx, http.MethodGet, path, nil, out)
}

func (d *Direct) post(ctx context.Context, path string, body map[string]any, out any) error {
	return d.do(ctx, http.MethodPost, path, body, out)
}

func (d *Direct) do(ctx context.Context, method, path string, body map[string]any, out any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return errorFromStatus(resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
