package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// --- Parameter helpers ---

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%w: %q is required", errMissingParam, key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", errMissingParam, key)
	}
	return s, nil
}

func optStringParam(params map[string]any, key, fallback string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// intParam tolerates the numeric types JSON and YAML decoding produce.
func intParam(params map[string]any, key string, fallback int) int {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return fallback
}

// stringsParam accepts a []string, a []any of strings, or a single string.
func stringsParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// asMap converts a struct to its JSON object form so handler results stay
// plain maps.
func asMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func asMaps[T any](items []T) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, asMap(item))
	}
	return out
}

// clampResults bounds a requested page size to [1, MaxTweetsPerRequest].
func (e *Executor) clampResults(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	if requested > e.config.MaxTweetsPerRequest {
		requested = e.config.MaxTweetsPerRequest
	}
	return requested
}

// --- Handlers ---

func (e *Executor) handleSearchTweets(ctx context.Context, params map[string]any) (map[string]any, error) {
	query, err := stringParam(params, "query")
	if err != nil {
		return nil, err
	}
	maxResults := e.clampResults(intParam(params, "max_results", 10), 10)

	tweets, err := e.client.SearchTweets(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(tweets))
	ids := make([]string, 0, len(tweets))
	for _, tw := range tweets {
		texts = append(texts, tw.Text)
		ids = append(ids, tw.ID)
	}
	return map[string]any{
		"query":     query,
		"count":     len(tweets),
		"tweets":    asMaps(tweets),
		"texts":     texts,
		"tweet_ids": ids,
	}, nil
}

func (e *Executor) handleGetUserTimeline(ctx context.Context, params map[string]any) (map[string]any, error) {
	username, err := stringParam(params, "username")
	if err != nil {
		return nil, err
	}
	maxTweets := e.clampResults(intParam(params, "max_tweets", intParam(params, "max_results", 10)), 10)

	tweets, err := e.client.GetUserTimeline(ctx, username, maxTweets)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(tweets))
	for _, tw := range tweets {
		texts = append(texts, tw.Text)
	}
	return map[string]any{
		"username": username,
		"count":    len(tweets),
		"tweets":   asMaps(tweets),
		"texts":    texts,
	}, nil
}

func (e *Executor) handleCreateTweet(ctx context.Context, params map[string]any) (map[string]any, error) {
	text, err := stringParam(params, "text")
	if err != nil {
		return nil, err
	}

	tweet, err := e.client.PostTweet(ctx, text)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tweet_id": tweet.ID,
		"text":     tweet.Text,
		"tweet":    asMap(tweet),
	}, nil
}

// handleLikeTweet accepts either a single tweet_id or a tweet_ids list capped
// by max_likes.
func (e *Executor) handleLikeTweet(ctx context.Context, params map[string]any) (map[string]any, error) {
	ids := stringsParam(params, "tweet_ids")
	if single, ok := params["tweet_id"].(string); ok && single != "" {
		ids = append([]string{single}, ids...)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %q or %q is required", errMissingParam, "tweet_id", "tweet_ids")
	}
	if maxLikes := intParam(params, "max_likes", 0); maxLikes > 0 && len(ids) > maxLikes {
		ids = ids[:maxLikes]
	}

	liked := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := e.client.LikeTweet(ctx, id); err != nil {
			return nil, fmt.Errorf("liking tweet %s: %w", id, err)
		}
		liked = append(liked, id)
	}
	return map[string]any{
		"liked_count": len(liked),
		"tweet_ids":   liked,
	}, nil
}

func (e *Executor) handleRetweet(ctx context.Context, params map[string]any) (map[string]any, error) {
	id, err := stringParam(params, "tweet_id")
	if err != nil {
		return nil, err
	}
	if err := e.client.Retweet(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{
		"tweet_id":  id,
		"retweeted": true,
	}, nil
}

func (e *Executor) handleFollowUser(ctx context.Context, params map[string]any) (map[string]any, error) {
	username, err := stringParam(params, "username")
	if err != nil {
		return nil, err
	}
	if err := e.client.FollowUser(ctx, username); err != nil {
		return nil, err
	}
	return map[string]any{
		"username": username,
		"followed": true,
	}, nil
}

func (e *Executor) handleGetTrends(ctx context.Context, params map[string]any) (map[string]any, error) {
	woeid := intParam(params, "woeid", 1)
	maxTrends := intParam(params, "max_trends", 0)

	cacheKey := fmt.Sprintf("trends:%d", woeid)
	if data, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		var cached map[string]any
		if json.Unmarshal(data, &cached) == nil {
			cached["cached"] = true
			return cached, nil
		}
	}

	trends, err := e.client.GetTrends(ctx, woeid)
	if err != nil {
		return nil, err
	}
	if maxTrends > 0 && len(trends) > maxTrends {
		trends = trends[:maxTrends]
	}

	names := make([]string, 0, len(trends))
	for _, tr := range trends {
		names = append(names, tr.Name)
	}
	result := map[string]any{
		"woeid":       woeid,
		"count":       len(trends),
		"trends":      asMaps(trends),
		"trend_names": names,
	}

	if data, err := json.Marshal(result); err == nil {
		if err := e.cache.Set(ctx, cacheKey, data); err != nil {
			e.logger.Warn("caching trends failed", zap.Int("woeid", woeid), zap.Error(err))
		}
	}
	return result, nil
}

func (e *Executor) handleAnalyzeSentiment(_ context.Context, params map[string]any) (map[string]any, error) {
	texts := stringsParam(params, "texts")
	if len(texts) == 0 {
		// Tolerate tweet objects from an earlier step.
		if tweets, ok := params["tweets"].([]any); ok {
			for _, item := range tweets {
				if m, ok := item.(map[string]any); ok {
					if text, ok := m["text"].(string); ok {
						texts = append(texts, text)
					}
				}
			}
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: %q is required", errMissingParam, "texts")
	}
	return analyzeSentiment(texts), nil
}

// handleMonitorUser fetches a user's profile and recent tweets, optionally
// filtered to tweets mentioning any of the given keywords.
func (e *Executor) handleMonitorUser(ctx context.Context, params map[string]any) (map[string]any, error) {
	username, err := stringParam(params, "username")
	if err != nil {
		return nil, err
	}
	keywords := stringsParam(params, "keywords")
	maxTweets := e.clampResults(intParam(params, "max_tweets", 20), 20)

	user, err := e.client.GetUserInfo(ctx, username)
	if err != nil {
		return nil, err
	}
	tweets, err := e.client.GetUserTimeline(ctx, username, maxTweets)
	if err != nil {
		return nil, err
	}

	matched := tweets
	if len(keywords) > 0 {
		matched = matched[:0:0]
		for _, tw := range tweets {
			lower := strings.ToLower(tw.Text)
			for _, kw := range keywords {
				if strings.Contains(lower, strings.ToLower(kw)) {
					matched = append(matched, tw)
					break
				}
			}
		}
	}

	return map[string]any{
		"username":        username,
		"user":            asMap(user),
		"tweet_count":     len(tweets),
		"filtered_tweets": len(matched),
		"tweets":          asMaps(matched),
		"keywords":        keywords,
	}, nil
}

func (e *Executor) handleGetUserInfo(ctx context.Context, params map[string]any) (map[string]any, error) {
	username, err := stringParam(params, "username")
	if err != nil {
		return nil, err
	}
	user, err := e.client.GetUserInfo(ctx, username)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"username": username,
		"user":     asMap(user),
	}, nil
}

func (e *Executor) handleGetTweetByID(ctx context.Context, params map[string]any) (map[string]any, error) {
	id, err := stringParam(params, "tweet_id")
	if err != nil {
		return nil, err
	}
	tweet, err := e.client.GetTweetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tweet_id": id,
		"tweet":    asMap(tweet),
	}, nil
}

func (e *Executor) handleGetFollowers(ctx context.Context, params map[string]any) (map[string]any, error) {
	username, err := stringParam(params, "username")
	if err != nil {
		return nil, err
	}
	maxResults := e.clampResults(intParam(params, "max_results", 100), 100)

	users, err := e.client.GetFollowers(ctx, username, maxResults)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"username":  username,
		"count":     len(users),
		"followers": asMaps(users),
	}, nil
}

func (e *Executor) handleGetFollowing(ctx context.Context, params map[string]any) (map[string]any, error) {
	username, err := stringParam(params, "username")
	if err != nil {
		return nil, err
	}
	maxResults := e.clampResults(intParam(params, "max_results", 100), 100)

	users, err := e.client.GetFollowing(ctx, username, maxResults)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"username":  username,
		"count":     len(users),
		"following": asMaps(users),
	}, nil
}
