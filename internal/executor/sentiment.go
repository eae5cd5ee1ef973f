package executor

import "strings"

// Keyword lexicon for the lightweight sentiment scorer. Matching is
// case-insensitive substring containment.
var (
	positiveWords = []string{"good", "great", "awesome", "amazing", "love", "best", "excellent"}
	negativeWords = []string{"bad", "terrible", "awful", "hate", "worst", "horrible", "disappointed"}
)

// scoreText classifies a single text by counting lexicon hits.
func scoreText(text string) (label string, positive, negative int) {
	lower := strings.ToLower(text)
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			positive++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			negative++
		}
	}
	switch {
	case positive > negative:
		label = "positive"
	case negative > positive:
		label = "negative"
	default:
		label = "neutral"
	}
	return label, positive, negative
}

// analyzeSentiment scores each text and aggregates the breakdown. The overall
// label is the majority class, neutral on ties.
func analyzeSentiment(texts []string) map[string]any {
	breakdown := map[string]int{"positive": 0, "negative": 0, "neutral": 0}
	scores := make([]map[string]any, 0, len(texts))

	for _, text := range texts {
		label, pos, neg := scoreText(text)
		breakdown[label]++
		scores = append(scores, map[string]any{
			"text":           text,
			"sentiment":      label,
			"positive_words": pos,
			"negative_words": neg,
		})
	}

	overall := "neutral"
	switch {
	case breakdown["positive"] > breakdown["negative"]:
		overall = "positive"
	case breakdown["negative"] > breakdown["positive"]:
		overall = "negative"
	}

	return map[string]any{
		"analyzed_count":      len(texts),
		"sentiment_breakdown": breakdown,
		"overall_sentiment":   overall,
		"detailed_scores":     scores,
	}
}
