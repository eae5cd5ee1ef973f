package twitter

import (
	"context"

	"go.uber.org/zap"

	"github.com/fentz26/warble/internal/metrics"
)

// Hybrid prefers the enhanced client and falls back to the direct client
// when the enhanced side is unreachable. The decision is made per call, so a
// gateway outage degrades service instead of ending it. Business failures
// (bad credentials, bad input, rate limits) propagate without fallback; they
// would fail the same way on either side or are handled by the executor's
// retry policy.
type Hybrid struct {
	primary  Client
	fallback Client
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewHybrid wires a primary and fallback client. fallback may be nil, in
// which case the hybrid behaves like the primary; metrics may be nil.
func NewHybrid(primary, fallback Client, m *metrics.Collector, logger *zap.Logger) *Hybrid {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hybrid{primary: primary, fallback: fallback, metrics: m, logger: logger}
}

// Name returns the client identifier.
func (h *Hybrid) Name() string {
	return "hybrid"
}

func (h *Hybrid) shouldFallback(op string, err error) bool {
	if err == nil || h.fallback == nil || !IsAvailability(err) {
		return false
	}
	h.logger.Warn("enhanced client unavailable, falling back to direct",
		zap.String("operation", op),
		zap.Error(err))
	h.metrics.FallbackObserved(op)
	return true
}

// SearchTweets returns recent tweets matching a query.
func (h *Hybrid) SearchTweets(ctx context.Context, query string, maxResults int) ([]Tweet, error) {
	tweets, err := h.primary.SearchTweets(ctx, query, maxResults)
	if h.shouldFallback("search_tweets", err) {
		return h.fallback.SearchTweets(ctx, query, maxResults)
	}
	return tweets, err
}

// GetUserTimeline returns a user's recent tweets.
func (h *Hybrid) GetUserTimeline(ctx context.Context, username string, maxTweets int) ([]Tweet, error) {
	tweets, err := h.primary.GetUserTimeline(ctx, username, maxTweets)
	if h.shouldFallback("get_user_timeline", err) {
		return h.fallback.GetUserTimeline(ctx, username, maxTweets)
	}
	return tweets, err
}

// PostTweet publishes a tweet.
func (h *Hybrid) PostTweet(ctx context.Context, text string) (*Tweet, error) {
	tweet, err := h.primary.PostTweet(ctx, text)
	if h.shouldFallback("create_tweet", err) {
		return h.fallback.PostTweet(ctx, text)
	}
	return tweet, err
}

// LikeTweet likes a tweet by ID.
func (h *Hybrid) LikeTweet(ctx context.Context, tweetID string) error {
	err := h.primary.LikeTweet(ctx, tweetID)
	if h.shouldFallback("like_tweet", err) {
		return h.fallback.LikeTweet(ctx, tweetID)
	}
	return err
}

// Retweet reposts a tweet by ID.
func (h *Hybrid) Retweet(ctx context.Context, tweetID string) error {
	err := h.primary.Retweet(ctx, tweetID)
	if h.shouldFallback("retweet", err) {
		return h.fallback.Retweet(ctx, tweetID)
	}
	return err
}

// FollowUser follows a user by username.
func (h *Hybrid) FollowUser(ctx context.Context, username string) error {
	err := h.primary.FollowUser(ctx, username)
	if h.shouldFallback("follow_user", err) {
		return h.fallback.FollowUser(ctx, username)
	}
	return err
}

// GetTrends returns trending topics for a WOEID location.
func (h *Hybrid) GetTrends(ctx context.Context, woeid int) ([]Trend, error) {
	trends, err := h.primary.GetTrends(ctx, woeid)
	if h.shouldFallback("get_trends", err) {
		return h.fallback.GetTrends(ctx, woeid)
	}
	return trends, err
}

// GetUserInfo returns a user's profile.
func (h *Hybrid) GetUserInfo(ctx context.Context, username string) (*UserInfo, error) {
	info, err := h.primary.GetUserInfo(ctx, username)
	if h.shouldFallback("get_user_info", err) {
		return h.fallback.GetUserInfo(ctx, username)
	}
	return info, err
}

// GetTweetByID returns a single tweet.
func (h *Hybrid) GetTweetByID(ctx context.Context, tweetID string) (*Tweet, error) {
	tweet, err := h.primary.GetTweetByID(ctx, tweetID)
	if h.shouldFallback("get_tweet_by_id", err) {
		return h.fallback.GetTweetByID(ctx, tweetID)
	}
	return tweet, err
}

// GetFollowers returns accounts following a user.
func (h *Hybrid) GetFollowers(ctx context.Context, username string, maxResults int) ([]UserInfo, error) {
	users, err := h.primary.GetFollowers(ctx, username, maxResults)
	if h.shouldFallback("get_followers", err) {
		return h.fallback.GetFollowers(ctx, username, maxResults)
	}
	return users, err
}

// GetFollowing returns accounts a user follows.
func (h *Hybrid) GetFollowing(ctx context.Context, username string, maxResults int) ([]UserInfo, error) {
	users, err := h.primary.GetFollowing(ctx, username, maxResults)
	if h.shouldFallback("get_following", err) {
		return h.fallback.GetFollowing(ctx, username, maxResults)
	}
	return users, err
}
