// Package planner turns natural-language requests into task requests. A
// model-backed path is used when an API key is configured; a keyword rule
// table always backs it up.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/fentz26/warble/internal/models"
)

// ErrUnparseable marks requests no rule could turn into a task.
var ErrUnparseable = errors.New("could not derive a task from the request")

const systemPrompt = `You translate a user's request about Twitter into exactly one JSON object:
{"type": "<task type>", "parameters": {...}}

Valid task types and their parameters:
- search_tweets: query (required), max_results
- get_user_timeline: username (required), max_tweets
- create_tweet: text (required)
- like_tweet: tweet_id
- retweet: tweet_id
- follow_user: username (required)
- get_trends: woeid, max_trends
- analyze_sentiment: texts (required, list of strings)
- monitor_user: username (required), keywords, max_tweets
- get_user_info: username (required)
- get_tweet_by_id: tweet_id (required)
- get_followers: username (required), max_results
- get_following: username (required), max_results

Respond with the JSON object only. No prose, no code fences.`

// Config configures the planner.
type Config struct {
	// APIKey enables the model-backed path. Empty means keyword rules only.
	APIKey string
	// Model overrides the default model.
	Model string
	// MaxTokens bounds the model response.
	MaxTokens int64
}

// Planner maps free text to a TaskRequest.
type Planner struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *zap.Logger
}

// New creates a planner. Without an API key it plans from keyword rules
// alone.
func New(cfg Config, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}

	var client *anthropic.Client
	if cfg.APIKey != "" {
		c := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
		client = &c
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &Planner{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Plan derives a task request from free text. The model path is tried first
// when configured; any model failure falls back to the keyword rules.
func (p *Planner) Plan(ctx context.Context, text string) (*models.TaskRequest, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty request", ErrUnparseable)
	}

	if p.client != nil {
		req, err := p.planModel(ctx, text)
		if err == nil {
			return req, nil
		}
		p.logger.Warn("model planning failed, using keyword rules", zap.Error(err))
	}
	return planKeywords(text)
}

func (p *Planner) planModel(ctx context.Context, text string) (*models.TaskRequest, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messages call: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(variant.Text)
		}
	}
	return parsePlan(out.String())
}

// parsePlan extracts the {type, parameters} object from a model response,
// tolerating surrounding prose or code fences.
func parsePlan(raw string) (*models.TaskRequest, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var plan struct {
		Type       string         `json:"type"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("decoding model response: %w", err)
	}

	taskType := models.TaskType(plan.Type)
	if !models.ValidTaskType(taskType) {
		return nil, fmt.Errorf("model returned unknown task type %q", plan.Type)
	}

	return &models.TaskRequest{
		Type:       taskType,
		Parameters: plan.Parameters,
		Priority:   models.PriorityMedium,
	}, nil
}

var (
	mentionRe = regexp.MustCompile(`@(\w+)`)
	hashtagRe = regexp.MustCompile(`#(\w+)`)
	quotedRe  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
)

// planKeywords maps text to a task via keyword rules, pulling @handles,
// #topics and quoted strings out as parameters.
func planKeywords(text string) (*models.TaskRequest, error) {
	lower := strings.ToLower(text)
	mentions := extractGroup(mentionRe, text)
	hashtags := extractGroup(hashtagRe, text)
	quoted := extractQuoted(text)

	build := func(t models.TaskType, params map[string]any) (*models.TaskRequest, error) {
		return &models.TaskRequest{
			Type:       t,
			Parameters: params,
			Priority:   models.PriorityMedium,
		}, nil
	}

	switch {
	case containsAny(lower, "search", "find"):
		query := firstNonEmpty(quoted)
		if query == "" && len(hashtags) > 0 {
			query = "#" + strings.Join(hashtags, " #")
		}
		if query == "" {
			query = stripFiller(lower, "search", "find", "for", "tweets", "tweet", "about")
		}
		if query == "" {
			return nil, fmt.Errorf("%w: nothing to search for", ErrUnparseable)
		}
		return build(models.TypeSearchTweets, map[string]any{"query": query})

	case containsAny(lower, "trend", "trending", "trends"):
		return build(models.TypeGetTrends, map[string]any{})

	case containsAny(lower, "post", "publish") || strings.HasPrefix(lower, "tweet"):
		content := firstNonEmpty(quoted)
		if content == "" {
			content = strings.TrimSpace(stripLeadingVerb(text, "post", "publish", "tweet"))
		}
		if content == "" {
			return nil, fmt.Errorf("%w: nothing to post", ErrUnparseable)
		}
		return build(models.TypeCreateTweet, map[string]any{"text": content})

	case containsAny(lower, "monitor", "watch") && len(mentions) > 0:
		params := map[string]any{"username": mentions[0]}
		if len(hashtags) > 0 {
			params["keywords"] = hashtags
		}
		return build(models.TypeMonitorUser, params)

	case strings.Contains(lower, "sentiment"):
		if len(quoted) == 0 {
			return nil, fmt.Errorf("%w: no texts to analyze", ErrUnparseable)
		}
		return build(models.TypeAnalyzeSentiment, map[string]any{"texts": quoted})

	case strings.Contains(lower, "timeline") && len(mentions) > 0:
		return build(models.TypeGetUserTimeline, map[string]any{"username": mentions[0]})

	case strings.Contains(lower, "follow") && len(mentions) > 0:
		return build(models.TypeFollowUser, map[string]any{"username": mentions[0]})

	case containsAny(lower, "profile", "info", "who is") && len(mentions) > 0:
		return build(models.TypeGetUserInfo, map[string]any{"username": mentions[0]})
	}

	return nil, fmt.Errorf("%w: %q", ErrUnparseable, text)
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func extractGroup(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func extractQuoted(text string) []string {
	var out []string
	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else if m[2] != "" {
			out = append(out, m[2])
		}
	}
	return out
}

func firstNonEmpty(items []string) string {
	for _, item := range items {
		if item != "" {
			return item
		}
	}
	return ""
}

// stripFiller removes rule keywords and returns what remains as the query.
func stripFiller(lower string, fillers ...string) string {
	words := strings.Fields(lower)
	var kept []string
	for _, w := range words {
		skip := false
		for _, f := range fillers {
			if w == f {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// stripLeadingVerb drops everything up to and including the first matched
// verb, preserving the original casing of what follows.
func stripLeadingVerb(text string, verbs ...string) string {
	lower := strings.ToLower(text)
	idx := -1
	width := 0
	for _, v := range verbs {
		if i := strings.Index(lower, v); i >= 0 && (idx < 0 || i < idx) {
			idx = i
			width = len(v)
		}
	}
	if idx < 0 {
		return text
	}
	return text[idx+width:]
}
