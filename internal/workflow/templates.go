package workflow

import "github.com/fentz26/warble/internal/models"

// Builtins returns the workflow templates that ship with the agent. Step
// parameters use {{name}} to reference workflow parameters and
// {{steps.STEP.field}} to reference a prior step's result.
func Builtins() []models.WorkflowDefinition {
	return []models.WorkflowDefinition{
		{
			Name:        "trend_monitor",
			Description: "Fetch trending topics and score their sentiment",
			Type:        models.WorkflowRecurring,
			Version:     "1.0.0",
			DefaultParameters: map[string]any{
				"woeid":      1, // worldwide
				"max_trends": 10,
			},
			Steps: []models.WorkflowStep{
				{
					Name: "trends",
					Type: models.TypeGetTrends,
					Parameters: map[string]any{
						"woeid": "{{woeid}}",
					},
					Required: true,
				},
				{
					Name: "sentiment",
					Type: models.TypeAnalyzeSentiment,
					Parameters: map[string]any{
						"texts": "{{steps.trends.trend_names}}",
					},
					Required: false,
				},
			},
		},
		{
			Name:        "user_monitor",
			Description: "Capture a user's profile and recent timeline activity",
			Type:        models.WorkflowRecurring,
			Version:     "1.0.0",
			DefaultParameters: map[string]any{
				"max_tweets": 20,
			},
			Steps: []models.WorkflowStep{
				{
					Name: "activity",
					Type: models.TypeMonitorUser,
					Parameters: map[string]any{
						"username":   "{{username}}",
						"max_tweets": "{{max_tweets}}",
					},
					Required: true,
				},
			},
		},
		{
			Name:        "sentiment_report",
			Description: "Search tweets for a query and report aggregate sentiment",
			Type:        models.WorkflowOneShot,
			Version:     "1.0.0",
			DefaultParameters: map[string]any{
				"max_results": 50,
			},
			Steps: []models.WorkflowStep{
				{
					Name: "search",
					Type: models.TypeSearchTweets,
					Parameters: map[string]any{
						"query":       "{{query}}",
						"max_results": "{{max_results}}",
					},
					Required: true,
				},
				{
					Name: "sentiment",
					Type: models.TypeAnalyzeSentiment,
					Parameters: map[string]any{
						"texts": "{{steps.search.texts}}",
					},
					Required: true,
				},
			},
		},
		{
			Name:        "engagement_boost",
			Description: "Find recent tweets for a query and like a capped number of them",
			Type:        models.WorkflowOneShot,
			Version:     "1.0.0",
			DefaultParameters: map[string]any{
				"max_results": 10,
				"max_likes":   5,
			},
			Steps: []models.WorkflowStep{
				{
					Name: "search",
					Type: models.TypeSearchTweets,
					Parameters: map[string]any{
						"query":       "{{query}}",
						"max_results": "{{max_results}}",
					},
					Required: true,
				},
				{
					Name: "like",
					Type: models.TypeLikeTweet,
					Parameters: map[string]any{
						"tweet_ids": "{{steps.search.tweet_ids}}",
						"max_likes": "{{max_likes}}",
					},
					Required: false,
				},
			},
		},
	}
}

// RegisterBuiltins loads the built-in templates into a registry.
func RegisterBuiltins(r *Registry) error {
	for _, def := range Builtins() {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
