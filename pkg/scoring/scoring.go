// Package scoring computes the cheap collection-phase ranking score and
// the weighted multi-dimensional final score.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/DragonSun329/briefAI-sub001/pkg/item"
)

// ErrConfiguration reports invalid score weights.
var ErrConfiguration = errors.New("invalid scoring configuration")

// Score bounds and the neutral midpoint for missing trend data.
const (
	MinScore     = 0.0
	MaxScore     = 10.0
	NeutralTrend = 5.0
)

// CollectionWeights combine the cheap pre-deep-evaluation components.
// They do not need to sum to 1; the result is clamped to [0,10].
type CollectionWeights struct {
	PartialEval float64 `yaml:"partial_eval"`
	Recency     float64 `yaml:"recency"`
	Trend       float64 `yaml:"trend"`
}

// DefaultCollectionWeights returns the default component weights.
func DefaultCollectionWeights() CollectionWeights {
	return CollectionWeights{PartialEval: 0.4, Recency: 0.4, Trend: 0.2}
}

// DeepWeights map deep-evaluation dimension names to their weights.
// Weights must be non-negative and sum to 1.0.
type DeepWeights map[string]float64

// Deep-evaluation dimension names shared with the evaluator.
const (
	DimPrimaryImpact        = "primary_impact"
	DimCompetitiveImpact    = "competitive_impact"
	DimStrategicRelevance   = "strategic_relevance"
	DimOperationalRelevance = "operational_relevance"
	DimCredibility          = "credibility"
	DimNovelty              = "novelty"
)

// DefaultDeepWeights returns the default dimension weights.
func DefaultDeepWeights() DeepWeights {
	return DeepWeights{
		DimPrimaryImpact:        0.25,
		DimCompetitiveImpact:    0.20,
		DimStrategicRelevance:   0.20,
		DimOperationalRelevance: 0.15,
		DimCredibility:          0.10,
		DimNovelty:              0.10,
	}
}

const weightSumEpsilon = 1e-6

// Validate checks that weights are non-negative and sum to 1.0.
func (w DeepWeights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: no deep-evaluation dimensions configured", ErrConfiguration)
	}
	sum := 0.0
	for name, v := range w {
		if v < 0 {
			return fmt.Errorf("%w: negative weight %.3f for dimension %s", ErrConfiguration, v, name)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > weightSumEpsilon {
		return fmt.Errorf("%w: deep weights sum to %.4f, want 1.0", ErrConfiguration, sum)
	}
	return nil
}

// Engine computes ranking scores for items.
type Engine struct {
	collection CollectionWeights
	deep       DeepWeights
	halfLife   time.Duration
	now        func() time.Time
}

// DefaultRecencyHalfLife is the age at which the recency score halves.
const DefaultRecencyHalfLife = 72 * time.Hour

// NewEngine creates a scoring engine. Deep weights are validated up
// front so a bad configuration fails before any work is done.
func NewEngine(collection CollectionWeights, deep DeepWeights, halfLife time.Duration) (*Engine, error) {
	if err := deep.Validate(); err != nil {
		return nil, err
	}
	if halfLife <= 0 {
		halfLife = DefaultRecencyHalfLife
	}
	return &Engine{
		collection: collection,
		deep:       deep,
		halfLife:   halfLife,
		now:        time.Now,
	}, nil
}

// CombinedScore is the cheap ranking score used before deep evaluation:
// a weighted sum of the partial evaluation, recency and trend
// components, clamped to [0,10].
func (e *Engine) CombinedScore(it *item.Item) float64 {
	partial := 0.0
	if it.PartialScore != nil {
		partial = *it.PartialScore
	}

	trend := NeutralTrend
	if it.TrendScore != nil {
		trend = *it.TrendScore
	}

	score := e.collection.PartialEval*partial +
		e.collection.Recency*e.RecencyScore(it.PublishedAt) +
		e.collection.Trend*trend
	return clamp(score)
}

// RecencyScore decays exponentially with item age: 10 for brand-new
// items, halved every halfLife, never below 0 and never increasing
// with age.
func (e *Engine) RecencyScore(publishedAt time.Time) float64 {
	age := e.now().Sub(publishedAt)
	if age <= 0 {
		return MaxScore
	}
	return clamp(MaxScore * math.Exp2(-age.Hours()/e.halfLife.Hours()))
}

// FinalScore folds the deep-evaluation dimensions into one weighted
// value. Dimensions absent from the result contribute nothing.
func (e *Engine) FinalScore(dimensions map[string]float64) float64 {
	score := 0.0
	for name, weight := range e.deep {
		score += weight * clamp(dimensions[name])
	}
	return clamp(score)
}

// Dimensions returns the configured dimension names.
func (e *Engine) Dimensions() []string {
	names := make([]string, 0, len(e.deep))
	for name := range e.deep {
		names = append(names, name)
	}
	return names
}

func clamp(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
