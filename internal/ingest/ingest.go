// Package ingest runs collection: collectors produce candidate items,
// entities and fast partial scores are attached, and the batch is
// appended to the period checkpoint.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DragonSun329/briefAI-sub001/internal/checkpoint"
	"github.com/DragonSun329/briefAI-sub001/pkg/entity"
	"github.com/DragonSun329/briefAI-sub001/pkg/evaluate"
	"github.com/DragonSun329/briefAI-sub001/pkg/item"
)

// Collector supplies raw candidate items for a run.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]item.Item, error)
}

// RunSummary reports what one collection run appended.
type RunSummary struct {
	RunBatchID string
	Collected  int
	Scored     int
}

// Runner drives one collection run into a period.
type Runner struct {
	store      checkpoint.Store
	collectors []Collector
	extractor  entity.Extractor
	scorer     evaluate.BatchScorer // optional, nil = items stay unscored
	log        *slog.Logger
}

// NewRunner creates a collection runner. scorer may be nil.
func NewRunner(store checkpoint.Store, collectors []Collector, extractor entity.Extractor,
	scorer evaluate.BatchScorer, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		store:      store,
		collectors: collectors,
		extractor:  extractor,
		scorer:     scorer,
		log:        log,
	}
}

// Run collects from every collector and appends the batch to the
// period. Collector failures are logged and skipped; the append itself
// failing (sealed period, storage fault) fails the run.
func (r *Runner) Run(ctx context.Context, periodID string) (*RunSummary, error) {
	batchID := uuid.NewString()
	log := r.log.With("period", periodID, "batch", batchID)

	var batch []item.Item
	for _, c := range r.collectors {
		items, err := c.Collect(ctx)
		if err != nil {
			log.Warn("collector failed", "collector", c.Name(), "error", err)
			continue
		}
		log.Info("collected", "collector", c.Name(), "items", len(items))
		batch = append(batch, items...)
	}

	for i := range batch {
		entities, err := r.extractor.Extract(ctx, batch[i].Title, batch[i].Body)
		if err != nil {
			log.Warn("entity extraction failed", "item", batch[i].ID, "error", err)
			continue
		}
		batch[i].Entities = entities
	}

	scored := r.scoreBatch(ctx, batch, log)

	if err := r.store.AppendItems(ctx, periodID, batchID, batch); err != nil {
		return nil, fmt.Errorf("append batch %s: %w", batchID, err)
	}

	log.Info("run appended", "items", len(batch), "scored", scored)
	return &RunSummary{RunBatchID: batchID, Collected: len(batch), Scored: scored}, nil
}

// scoreBatch attaches fast partial scores. Best effort: a scoring
// failure leaves the batch collected but unscored.
func (r *Runner) scoreBatch(ctx context.Context, batch []item.Item, log *slog.Logger) int {
	if r.scorer == nil || len(batch) == 0 {
		return 0
	}

	scores, err := r.scorer.ScoreBatch(ctx, batch)
	if err != nil {
		log.Warn("fast scoring failed, items stay unscored", "error", err)
		return 0
	}

	scored := 0
	for i := range batch {
		if s, ok := scores[batch[i].ID]; ok {
			score := s
			batch[i].PartialScore = &score
			batch[i].Status = item.StatusPartiallyScored
			scored++
		}
	}
	return scored
}
