// Package twitter provides the Twitter/X collaborator clients: a direct API
// client, an enhanced action-gateway client, and a hybrid client that falls
// back from enhanced to direct call by call.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Failure classes. The executor branches on these to decide whether an
// attempt is worth retrying; the hybrid client falls back only on
// availability failures.
var (
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrUnavailable       = errors.New("service unavailable")
)

// Tweet is a single post with the engagement counters the agent cares about.
type Tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Likes     int       `json:"like_count"`
	Retweets  int       `json:"retweet_count"`
	Replies   int       `json:"reply_count"`
}

// Trend is a trending topic for a location.
type Trend struct {
	Name       string `json:"name"`
	URL        string `json:"url,omitempty"`
	TweetCount int    `json:"tweet_volume,omitempty"`
}

// UserInfo is a user profile summary.
type UserInfo struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	Followers   int    `json:"followers_count"`
	Following   int    `json:"following_count"`
	TweetCount  int    `json:"tweet_count"`
	Verified    bool   `json:"verified"`
}

// Client defines the collaborator surface the executor drives.
type Client interface {
	// SearchTweets returns recent tweets matching a query.
	SearchTweets(ctx context.Context, query string, maxResults int) ([]Tweet, error)

	// GetUserTimeline returns a user's recent tweets.
	GetUserTimeline(ctx context.Context, username string, maxTweets int) ([]Tweet, error)

	// PostTweet publishes a tweet and returns it.
	PostTweet(ctx context.Context, text string) (*Tweet, error)

	// LikeTweet likes a tweet by ID.
	LikeTweet(ctx context.Context, tweetID string) error

	// Retweet reposts a tweet by ID.
	Retweet(ctx context.Context, tweetID string) error

	// FollowUser follows a user by username.
	FollowUser(ctx context.Context, username string) error

	// GetTrends returns trending topics for a WOEID location.
	GetTrends(ctx context.Context, woeid int) ([]Trend, error)

	// GetUserInfo returns a user's profile.
	GetUserInfo(ctx context.Context, username string) (*UserInfo, error)

	// GetTweetByID returns a single tweet.
	GetTweetByID(ctx context.Context, tweetID string) (*Tweet, error)

	// GetFollowers returns accounts following a user.
	GetFollowers(ctx context.Context, username string, maxResults int) ([]UserInfo, error)

	// GetFollowing returns accounts a user follows.
	GetFollowing(ctx context.Context, username string, maxResults int) ([]UserInfo, error)

	// Name returns the client identifier for logs and stats.
	Name() string
}

// IsAvailability reports whether err means the service could not be reached
// at all: ErrUnavailable or a transport-level failure. These are the only
// errors worth answering with a different client.
func IsAvailability(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsPermanent reports whether err will not improve on retry: bad credentials
// or bad input fail the same way every time.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidParameters)
}

// errorFromStatus maps an HTTP response to the failure classes.
func errorFromStatus(status int, body string) error {
	if len(body) > 200 {
		body = body[:200]
	}
	switch {
	case status == 429:
		return fmt.Errorf("%w: status 429: %s", ErrRateLimited, body)
	case status == 401 || status == 403:
		return fmt.Errorf("%w: status %d: %s", ErrUnauthorized, status, body)
	case status == 400 || status == 404 || status == 422:
		return fmt.Errorf("%w: status %d: %s", ErrInvalidParameters, status, body)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, body)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, body)
	}
}
