// Package evaluate defines the external evaluator contract: a fast
// single relevance score during collection, and an expensive
// multi-dimensional deep evaluation reserved for top-ranked survivors.
package evaluate

import (
	"context"
	"errors"

	"github.com/DragonSun329/briefAI-sub001/pkg/item"
)

// ErrUnavailable reports a collaborator-wide outage (rate limiting,
// 5xx, connection failure). It is distinct from a valid low score and
// from a malformed per-item response, and is the only error class the
// orchestrator treats as retry-the-whole-run.
var ErrUnavailable = errors.New("evaluator unavailable")

// Evaluator scores items.
type Evaluator interface {
	// Score returns a fast relevance score in [0,10].
	Score(ctx context.Context, it *item.Item) (float64, error)

	// Evaluate returns the deep per-dimension scores, each in [0,10].
	Evaluate(ctx context.Context, it *item.Item) (map[string]float64, error)
}

// BatchScorer is implemented by evaluators that can fast-score a whole
// collection batch in one call.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, items []item.Item) (map[string]float64, error)
}
