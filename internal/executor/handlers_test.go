package executor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fentz26/warble/internal/store"
	"github.com/fentz26/warble/internal/twitter"
	"github.com/fentz26/warble/internal/workflow"
)

func TestScoreText(t *testing.T) {
	tests := []struct {
		text     string
		label    string
		positive int
		negative int
	}{
		{"This release is great and awesome", "positive", 2, 0},
		{"I hate this terrible update", "negative", 0, 2},
		{"an ordinary tuesday", "neutral", 0, 0},
		{"love the idea, worst execution", "neutral", 1, 1},
		{"GREAT stuff", "positive", 1, 0},
	}
	for _, tc := range tests {
		label, pos, neg := scoreText(tc.text)
		assert.Equal(t, tc.label, label, "text %q", tc.text)
		assert.Equal(t, tc.positive, pos, "text %q", tc.text)
		assert.Equal(t, tc.negative, neg, "text %q", tc.text)
	}
}

func TestAnalyzeSentimentAggregates(t *testing.T) {
	result := analyzeSentiment([]string{
		"what a great day",
		"best tool I have used",
		"absolutely horrible",
	})

	assert.Equal(t, 3, result["analyzed_count"])
	assert.Equal(t, "positive", result["overall_sentiment"])

	breakdown := result["sentiment_breakdown"].(map[string]int)
	assert.Equal(t, 2, breakdown["positive"])
	assert.Equal(t, 1, breakdown["negative"])
	assert.Equal(t, 0, breakdown["neutral"])

	scores := result["detailed_scores"].([]map[string]any)
	require.Len(t, scores, 3)
	assert.Equal(t, "positive", scores[0]["sentiment"])
}

func TestAnalyzeSentimentFromTweetObjects(t *testing.T) {
	e, _, _ := newTestExecutor(t, newFakeClient(), nil)

	result, err := e.handleAnalyzeSentiment(context.Background(), map[string]any{
		"tweets": []any{
			map[string]any{"text": "I love this"},
			map[string]any{"text": "meh"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result["analyzed_count"])
	assert.Equal(t, "positive", result["overall_sentiment"])
}

func TestResolveParamsReferences(t *testing.T) {
	stepResults := map[string]any{
		"search": map[string]any{"texts": []string{"a", "b"}},
	}
	params := map[string]any{"query": "golang", "max_results": 25}

	resolved, err := resolveParams(map[string]any{
		"max_results": "{{max_results}}",
		"q":           "lang:{{query}}",
		"nested":      map[string]any{"texts": "{{steps.search.texts}}"},
	}, params, stepResults)
	require.NoError(t, err)

	// Whole-string references keep the referenced type.
	assert.Equal(t, 25, resolved["max_results"])
	assert.Equal(t, "lang:golang", resolved["q"])

	nested := resolved["nested"].(map[string]any)
	assert.Equal(t, []string{"a", "b"}, nested["texts"])
}

func TestResolveParamsMissingReference(t *testing.T) {
	_, err := resolveParams(map[string]any{"texts": "{{steps.nope.texts}}"}, nil, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not resolve")

	_, err = resolveParams(map[string]any{"q": "x {{missing}} y"}, map[string]any{}, nil)
	require.Error(t, err)
}

func TestIntParam(t *testing.T) {
	params := map[string]any{
		"int":    7,
		"float":  float64(8),
		"string": "9",
		"junk":   "many",
	}
	assert.Equal(t, 7, intParam(params, "int", 1))
	assert.Equal(t, 8, intParam(params, "float", 1))
	assert.Equal(t, 9, intParam(params, "string", 1))
	assert.Equal(t, 1, intParam(params, "junk", 1))
	assert.Equal(t, 1, intParam(params, "absent", 1))
}

func TestStringsParam(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringsParam(map[string]any{"k": []string{"a", "b"}}, "k"))
	assert.Equal(t, []string{"a", "b"}, stringsParam(map[string]any{"k": []any{"a", "b"}}, "k"))
	assert.Equal(t, []string{"solo"}, stringsParam(map[string]any{"k": "solo"}, "k"))
	assert.Nil(t, stringsParam(map[string]any{}, "k"))
}

func TestClampResults(t *testing.T) {
	e, _, _ := newTestExecutor(t, newFakeClient(), nil)

	assert.Equal(t, 10, e.clampResults(0, 10))
	assert.Equal(t, 42, e.clampResults(42, 10))
	assert.Equal(t, 100, e.clampResults(5000, 10))
}

func TestLikeTweetHonorsMaxLikes(t *testing.T) {
	client := newFakeClient()
	e, _, _ := newTestExecutor(t, client, nil)

	result, err := e.handleLikeTweet(context.Background(), map[string]any{
		"tweet_ids": []any{"a", "b", "c"},
		"max_likes": 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result["liked_count"])
	assert.Equal(t, 2, client.count("like"))
}

func TestLikeTweetSingleID(t *testing.T) {
	client := newFakeClient()
	e, _, _ := newTestExecutor(t, client, nil)

	result, err := e.handleLikeTweet(context.Background(), map[string]any{"tweet_id": "a"})
	require.NoError(t, err)

	assert.Equal(t, 1, result["liked_count"])
	assert.Equal(t, 1, client.count("like"))
}

func TestLikeTweetRequiresAnID(t *testing.T) {
	e, _, _ := newTestExecutor(t, newFakeClient(), nil)

	_, err := e.handleLikeTweet(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.True(t, isPermanent(err))
}

func TestGetTrendsUsesCache(t *testing.T) {
	client := newFakeClient()
	s := store.New()
	e := New(s, workflow.NewRegistry(), client, newMapCache(), nil, testConfig(), zap.NewNop())
	t.Cleanup(e.Stop)

	params := map[string]any{"woeid": 1}

	first, err := e.handleGetTrends(context.Background(), params)
	require.NoError(t, err)
	assert.Nil(t, first["cached"])

	second, err := e.handleGetTrends(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, true, second["cached"])

	// The collaborator was only consulted once.
	assert.Equal(t, 1, client.count("trends"))
}

func TestMonitorUserFiltersKeywords(t *testing.T) {
	client := newFakeClient()
	client.tweets = []twitter.Tweet{
		{ID: "1", Text: "I love shipping on fridays"},
		{ID: "2", Text: "nothing to see here"},
	}
	e, _, _ := newTestExecutor(t, client, nil)

	result, err := e.handleMonitorUser(context.Background(), map[string]any{
		"username": "gopher",
		"keywords": []any{"love"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result["tweet_count"])
	assert.Equal(t, 1, result["filtered_tweets"])
	assert.Equal(t, 1, client.count("user_info"))
	assert.Equal(t, 1, client.count("timeline"))
}

// mapCache is an in-memory Cache for handler tests.
type mapCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{m: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *mapCache) Close() error { return nil }
