package evaluate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/DragonSun329/briefAI-sub001/pkg/item"
)

const quickPrompt = `You are a content triage analyst. Evaluate a batch of candidate items and assign each a relevance score.

For each item, assign "score" (0-10): how important is this item for a weekly strategic briefing?
- 9-10: industry-shaking news, major launch or breakthrough
- 7-8: notable update with clear strategic implications
- 5-6: interesting but incremental
- 3-4: tangential, low novelty
- 0-2: irrelevant or noise

Be strict: most items should score 5 or below.

Items to evaluate:
%s

Respond with a JSON array. Each element must have: "id" (the item ID) and "score" (number 0-10).
Example: [{"id":"rss:verge:abc","score":7}]

Return ONLY the JSON array, no other text.`

const deepPrompt = `You are a senior analyst producing a weekly strategic briefing. Evaluate ONE content item in depth and score it on each dimension from 0 to 10:

- "primary_impact": direct impact on our core product area
- "competitive_impact": how much this shifts the competitive landscape
- "strategic_relevance": relevance to long-term strategy
- "operational_relevance": near-term operational consequences
- "credibility": reliability of the source and claims
- "novelty": how new this information actually is

Item:
Title: %s
Source: %s
Published: %s
Body:
%s

Respond with a single JSON object mapping each dimension name to its score.
Example: {"primary_impact":7,"competitive_impact":5,"strategic_relevance":6,"operational_relevance":4,"credibility":8,"novelty":6}

Return ONLY the JSON object, no other text.`

// LLMEvaluator implements Evaluator against an OpenAI- or
// Anthropic-compatible chat API.
type LLMEvaluator struct {
	client   *http.Client
	provider string // "openai" or "anthropic"
	model    string
	apiKey   string
	baseURL  string
}

// NewLLMEvaluator creates an LLM-backed evaluator.
func NewLLMEvaluator(provider, model, apiKey, baseURL string) *LLMEvaluator {
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}
	return &LLMEvaluator{
		client:   &http.Client{Timeout: 60 * time.Second},
		provider: provider,
		model:    model,
		apiKey:   apiKey,
		baseURL:  baseURL,
	}
}

// Score fast-scores a single item.
func (e *LLMEvaluator) Score(ctx context.Context, it *item.Item) (float64, error) {
	scores, err := e.ScoreBatch(ctx, []item.Item{*it})
	if err != nil {
		return 0, err
	}
	score, ok := scores[it.ID]
	if !ok {
		return 0, fmt.Errorf("no score returned for %s", it.ID)
	}
	return score, nil
}

// ScoreBatch sends a whole batch to the model in one call and returns
// scores keyed by item ID.
func (e *LLMEvaluator) ScoreBatch(ctx context.Context, items []item.Item) (map[string]float64, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var lines []string
	for i := range items {
		it := &items[i]
		line := fmt.Sprintf("- ID: %s | Source: %s | Title: %s", it.ID, it.Source, it.Title)
		if it.Body != "" {
			line += " | Body: " + truncate(it.Body, 200)
		}
		lines = append(lines, line)
	}

	raw, err := e.complete(ctx, fmt.Sprintf(quickPrompt, strings.Join(lines, "\n")))
	if err != nil {
		return nil, err
	}

	var results []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &results); err != nil {
		return nil, fmt.Errorf("parse batch response: %w (raw: %s)", err, truncate(raw, 300))
	}

	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[r.ID] = clampScore(r.Score)
	}
	return scores, nil
}

// Evaluate performs the deep multi-dimensional evaluation of one item.
func (e *LLMEvaluator) Evaluate(ctx context.Context, it *item.Item) (map[string]float64, error) {
	prompt := fmt.Sprintf(deepPrompt,
		it.Title, it.Source, it.PublishedAt.Format("2006-01-02"), truncate(it.Body, 4000))

	raw, err := e.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var dims map[string]float64
	if err := json.Unmarshal([]byte(stripFences(raw)), &dims); err != nil {
		return nil, fmt.Errorf("parse deep response for %s: %w (raw: %s)", it.ID, err, truncate(raw, 300))
	}
	for name, v := range dims {
		dims[name] = clampScore(v)
	}
	return dims, nil
}

func (e *LLMEvaluator) complete(ctx context.Context, prompt string) (string, error) {
	if e.provider == "anthropic" {
		return e.callAnthropic(ctx, prompt)
	}
	return e.callOpenAI(ctx, prompt)
}

func (e *LLMEvaluator) callOpenAI(ctx context.Context, prompt string) (string, error) {
	baseURL := e.baseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	payload := map[string]any{
		"model": e.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if err := checkStatus("openai", resp.StatusCode); err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (e *LLMEvaluator) callAnthropic(ctx context.Context, prompt string) (string, error) {
	baseURL := e.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload := map[string]any{
		"model":      e.model,
		"max_tokens": 4096,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if err := checkStatus("anthropic", resp.StatusCode); err != nil {
		return "", err
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

// checkStatus maps rate limiting and server errors to ErrUnavailable so
// callers can tell an outage apart from a per-item problem.
func checkStatus(provider string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%s status %d: %w", provider, status, ErrUnavailable)
	default:
		return fmt.Errorf("%s status %d", provider, status)
	}
}

// stripFences removes a wrapping markdown code block, if any.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
			raw = raw[3+idx+1:]
		}
		if strings.HasSuffix(raw, "```") {
			raw = raw[:len(raw)-3]
		}
		raw = strings.TrimSpace(raw)
	}
	return raw
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
