package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DragonSun329/briefAI-sub001/pkg/item"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyEventualSuccess(t *testing.T) {
	calls := 0
	p := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryPolicyExhausted(t *testing.T) {
	calls := 0
	p := RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond}

	sentinel := errors.New("still broken")
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 2, calls)
}

func TestRetryPolicyContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RetryPolicy{Attempts: 5, BaseDelay: time.Hour}
	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls, "no further attempts after the context ends")
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `[{"id":"a"}]`, want: `[{"id":"a"}]`},
		{name: "fenced", in: "```json\n[{\"id\":\"a\"}]\n```", want: `[{"id":"a"}]`},
		{name: "bare fence", in: "```\n{}\n```", want: `{}`},
		{name: "whitespace", in: "  {}  ", want: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func openAIResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestLLMEvaluatorScoreBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		fmt.Fprint(w, openAIResponse("```json\n[{\"id\":\"rss:a:1\",\"score\":7},{\"id\":\"rss:b:2\",\"score\":12}]\n```"))
	}))
	defer srv.Close()

	e := NewLLMEvaluator("openai", "test-model", "key", srv.URL)
	scores, err := e.ScoreBatch(context.Background(), []item.Item{
		{ID: "rss:a:1", Title: "one"},
		{ID: "rss:b:2", Title: "two"},
	})
	require.NoError(t, err)
	require.Equal(t, 7.0, scores["rss:a:1"])
	require.Equal(t, 10.0, scores["rss:b:2"], "scores are clamped to [0,10]")
}

func TestLLMEvaluatorDeep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, openAIResponse(`{"primary_impact":8,"credibility":6}`))
	}))
	defer srv.Close()

	e := NewLLMEvaluator("openai", "test-model", "key", srv.URL)
	it := &item.Item{ID: "rss:a:1", Title: "one", PublishedAt: time.Now()}
	dims, err := e.Evaluate(context.Background(), it)
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"primary_impact": 8, "credibility": 6}, dims)
}

func TestLLMEvaluatorUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		e := NewLLMEvaluator("openai", "test-model", "key", srv.URL)
		_, err := e.Score(context.Background(), &item.Item{ID: "rss:a:1", Title: "one"})
		require.ErrorIs(t, err, ErrUnavailable, "status %d must map to ErrUnavailable", status)
		srv.Close()
	}
}

func TestLLMEvaluatorTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	e := NewLLMEvaluator("openai", "test-model", "key", srv.URL)
	_, err := e.Score(context.Background(), &item.Item{ID: "rss:a:1", Title: "one"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "connection refused", "the transport error is kept in the chain")
}

func TestLLMEvaluatorBadRequestIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewLLMEvaluator("openai", "test-model", "key", srv.URL)
	_, err := e.Score(context.Background(), &item.Item{ID: "rss:a:1", Title: "one"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnavailable)
}
