package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestDirect(t *testing.T, handler http.Handler) (*Direct, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewDirect(DirectConfig{
		BaseURL:     srv.URL,
		BearerToken: "test-token",
		UserID:      "me-1",
	})
	return client, srv
}

func TestDirectSearchTweets(t *testing.T) {
	client, _ := newTestDirect(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets/search/recent" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Unexpected auth header: %s", got)
		}
		if got := r.URL.Query().Get("query"); got != "golang" {
			t.Errorf("Unexpected query param: %s", got)
		}
		w.Write([]byte(`{"data":[
			{"id":"1","text":"go rocks","author_id":"7","public_metrics":{"like_count":3,"retweet_count":1,"reply_count":0}},
			{"id":"2","text":"generics!","author_id":"8","public_metrics":{"like_count":9,"retweet_count":2,"reply_count":4}}
		]}`))
	}))

	tweets, err := client.SearchTweets(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("SearchTweets failed: %v", err)
	}
	if len(tweets) != 2 {
		t.Fatalf("Expected 2 tweets, got %d", len(tweets))
	}
	if tweets[0].ID != "1" || tweets[0].Likes != 3 {
		t.Errorf("Unexpected first tweet: %+v", tweets[0])
	}
	if tweets[1].Replies != 4 {
		t.Errorf("Unexpected reply count: %d", tweets[1].Replies)
	}
}

func TestDirectSearchValidation(t *testing.T) {
	client := NewDirect(DirectConfig{})
	_, err := client.SearchTweets(context.Background(), "", 10)
	if !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("Expected ErrInvalidParameters for empty query, got %v", err)
	}
}

func TestDirectStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrInvalidParameters},
		{http.StatusInternalServerError, ErrUnavailable},
		{http.StatusBadGateway, ErrUnavailable},
	}

	for _, tc := range cases {
		client, _ := newTestDirect(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		_, err := client.SearchTweets(context.Background(), "golang", 10)
		if !errors.Is(err, tc.want) {
			t.Errorf("Status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestDirectGetUserInfo(t *testing.T) {
	client, _ := newTestDirect(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/2/users/by/username/gopher") {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":{
			"id":"42","name":"The Gopher","username":"gopher","description":"mascot",
			"verified":true,
			"public_metrics":{"followers_count":1000,"following_count":10,"tweet_count":250}
		}}`))
	}))

	info, err := client.GetUserInfo(context.Background(), "gopher")
	if err != nil {
		t.Fatalf("GetUserInfo failed: %v", err)
	}
	if info.ID != "42" || info.DisplayName != "The Gopher" {
		t.Errorf("Unexpected user info: %+v", info)
	}
	if info.Followers != 1000 || !info.Verified {
		t.Errorf("Unexpected metrics: %+v", info)
	}
}

func TestDirectGetUserTimeline(t *testing.T) {
	client, _ := newTestDirect(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/2/users/by/username/"):
			w.Write([]byte(`{"data":{"id":"42","name":"The Gopher","username":"gopher"}}`))
		case r.URL.Path == "/2/users/42/tweets":
			w.Write([]byte(`{"data":[{"id":"5","text":"recent post"}]}`))
		default:
			t.Errorf("Unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	tweets, err := client.GetUserTimeline(context.Background(), "gopher", 5)
	if err != nil {
		t.Fatalf("GetUserTimeline failed: %v", err)
	}
	if len(tweets) != 1 || tweets[0].Text != "recent post" {
		t.Errorf("Unexpected timeline: %+v", tweets)
	}
}

func TestDirectGetTrends(t *testing.T) {
	client, _ := newTestDirect(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1.1/trends/place.json" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "1" {
			t.Errorf("Unexpected woeid: %s", got)
		}
		w.Write([]byte(`[{"trends":[
			{"name":"#golang","url":"https://x.com/t/1","tweet_volume":5000},
			{"name":"#opensource","tweet_volume":1200}
		]}]`))
	}))

	trends, err := client.GetTrends(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetTrends failed: %v", err)
	}
	if len(trends) != 2 {
		t.Fatalf("Expected 2 trends, got %d", len(trends))
	}
	if trends[0].Name != "#golang" || trends[0].TweetCount != 5000 {
		t.Errorf("Unexpected trend: %+v", trends[0])
	}
}

func TestDirectPostTweetValidation(t *testing.T) {
	client := NewDirect(DirectConfig{})

	_, err := client.PostTweet(context.Background(), "")
	if !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("Expected ErrInvalidParameters for empty text, got %v", err)
	}

	_, err = client.PostTweet(context.Background(), strings.Repeat("x", 281))
	if !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("Expected ErrInvalidParameters for oversized text, got %v", err)
	}
}

func TestDirectPostTweet(t *testing.T) {
	client, _ := newTestDirect(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2/tweets" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"77","text":"hello world"}}`))
	}))

	tweet, err := client.PostTweet(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("PostTweet failed: %v", err)
	}
	if tweet.ID != "77" {
		t.Errorf("Unexpected tweet id: %s", tweet.ID)
	}
}

func TestDirectLikeRequiresUserID(t *testing.T) {
	client := NewDirect(DirectConfig{BaseURL: "http://127.0.0.1:0"})
	err := client.LikeTweet(context.Background(), "123")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized without user id, got %v", err)
	}
}

func TestDirectLikeTweet(t *testing.T) {
	client, _ := newTestDirect(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/me-1/likes" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"liked":true}}`))
	}))

	if err := client.LikeTweet(context.Background(), "123"); err != nil {
		t.Fatalf("LikeTweet failed: %v", err)
	}
}
