// Package consolidate drives the end-of-period state machine:
// seal, dedupe, rank, deep-evaluate the top-K survivors, finalize.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DragonSun329/briefAI-sub001/internal/checkpoint"
	"github.com/DragonSun329/briefAI-sub001/pkg/dedup"
	"github.com/DragonSun329/briefAI-sub001/pkg/evaluate"
	"github.com/DragonSun329/briefAI-sub001/pkg/item"
	"github.com/DragonSun329/briefAI-sub001/pkg/scoring"
)

// State is a stage of the consolidation run. Transitions are strictly
// forward.
type State string

const (
	StateCollecting     State = "collecting"
	StateSealed         State = "sealed"
	StateDeduplicating  State = "deduplicating"
	StateRanking        State = "ranking"
	StateDeepEvaluating State = "deep_evaluating"
	StateFinalized      State = "finalized"
)

var stateOrder = map[State]int{
	StateCollecting:     0,
	StateSealed:         1,
	StateDeduplicating:  2,
	StateRanking:        3,
	StateDeepEvaluating: 4,
	StateFinalized:      5,
}

// Options configure a consolidation run.
type Options struct {
	TopK          int           // survivors sent to deep evaluation
	SelectionSize int           // final list length
	Concurrency   int           // parallel deep-evaluation calls
	CallTimeout   time.Duration // per deep-evaluation call
	Retry         evaluate.RetryPolicy
}

// DefaultOptions returns the standard consolidation options.
func DefaultOptions() Options {
	return Options{
		TopK:          30,
		SelectionSize: 12,
		Concurrency:   4,
		CallTimeout:   2 * time.Minute,
		Retry:         evaluate.DefaultRetryPolicy(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TopK <= 0 {
		o.TopK = def.TopK
	}
	if o.SelectionSize <= 0 {
		o.SelectionSize = def.SelectionSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = def.CallTimeout
	}
	if o.Retry.Attempts <= 0 {
		o.Retry = def.Retry
	}
	return o
}

// Stats summarize a finalized run, so callers can detect partial
// degradation even on nominal success.
type Stats struct {
	Collected     int `json:"collected"`
	Merged        int `json:"merged"`
	DeepEvaluated int `json:"deep_evaluated"`
	Failed        int `json:"failed"`
	Selected      int `json:"selected"`
}

// Result is the finalized output of a consolidation run.
type Result struct {
	PeriodID    string      `json:"period_id"`
	Selected    []item.Item `json:"selected"`
	Stats       Stats       `json:"stats"`
	FinalizedAt time.Time   `json:"finalized_at"`
}

// Orchestrator runs period consolidation.
type Orchestrator struct {
	store     checkpoint.Store
	deduper   *dedup.Engine
	scorer    *scoring.Engine
	evaluator evaluate.Evaluator
	opts      Options
	log       *slog.Logger

	state State
}

// New creates an orchestrator.
func New(store checkpoint.Store, deduper *dedup.Engine, scorer *scoring.Engine,
	evaluator evaluate.Evaluator, opts Options, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		deduper:   deduper,
		scorer:    scorer,
		evaluator: evaluator,
		opts:      opts.withDefaults(),
		log:       log,
		state:     StateCollecting,
	}
}

// State returns the current stage.
func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) transition(next State) error {
	if stateOrder[next] <= stateOrder[o.state] {
		return fmt.Errorf("illegal transition %s -> %s", o.state, next)
	}
	o.state = next
	return nil
}

// Run consolidates one period end to end. Per-item evaluation failures
// are recorded on the items and never abort the run; a collaborator
// outage or a structural failure (unknown period) aborts with an error.
func (o *Orchestrator) Run(ctx context.Context, periodID string) (*Result, error) {
	log := o.log.With("period", periodID)

	// Seal. A period sealed by an earlier, interrupted run is resumed
	// from its existing snapshot.
	if err := o.transition(StateSealed); err != nil {
		return nil, err
	}
	snapshot, err := o.store.SealPeriod(ctx, periodID)
	if errors.Is(err, checkpoint.ErrAlreadySealed) {
		log.Warn("period already sealed, resuming from snapshot")
		snapshot, err = o.store.LoadPeriod(ctx, periodID)
	}
	if err != nil {
		return nil, fmt.Errorf("seal period %s: %w", periodID, err)
	}

	live := make([]item.Item, 0, len(snapshot))
	for _, it := range snapshot {
		if it.Live() {
			live = append(live, it)
		}
	}
	collected := len(live)
	log.Info("period sealed", "items", collected)

	// Dedupe.
	if err := o.transition(StateDeduplicating); err != nil {
		return nil, err
	}
	dres := o.deduper.Run(live)
	if len(dres.Merged) > 0 {
		if err := o.store.SaveResults(ctx, periodID, dres.Merged); err != nil {
			return nil, fmt.Errorf("save merge results: %w", err)
		}
	}
	log.Info("deduplicated", "survivors", len(dres.Survivors), "merged", dres.MergedCount)

	// Rank survivors by combined score.
	if err := o.transition(StateRanking); err != nil {
		return nil, err
	}
	survivors := dres.Survivors
	combined := make(map[string]float64, len(survivors))
	for i := range survivors {
		combined[survivors[i].ID] = o.scorer.CombinedScore(&survivors[i])
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		si, sj := combined[survivors[i].ID], combined[survivors[j].ID]
		if si != sj {
			return si > sj
		}
		if !survivors[i].PublishedAt.Equal(survivors[j].PublishedAt) {
			return survivors[i].PublishedAt.After(survivors[j].PublishedAt)
		}
		return survivors[i].ID < survivors[j].ID
	})

	// Deep-evaluate the top K.
	if err := o.transition(StateDeepEvaluating); err != nil {
		return nil, err
	}
	topK := o.opts.TopK
	if topK > len(survivors) {
		topK = len(survivors)
	}
	failed, err := o.deepEvaluate(ctx, survivors[:topK])
	if err != nil {
		return nil, err
	}
	evaluated := topK - failed
	log.Info("deep evaluation done", "evaluated", evaluated, "failed", failed)

	// Finalize.
	if err := o.transition(StateFinalized); err != nil {
		return nil, err
	}
	if topK > 0 {
		if err := o.store.SaveResults(ctx, periodID, survivors[:topK]); err != nil {
			return nil, fmt.Errorf("save evaluation results: %w", err)
		}
	}

	selected := selectTop(survivors[:topK], o.opts.SelectionSize)
	if err := o.store.ArchivePeriod(ctx, periodID); err != nil {
		return nil, fmt.Errorf("archive period: %w", err)
	}

	res := &Result{
		PeriodID: periodID,
		Selected: selected,
		Stats: Stats{
			Collected:     collected,
			Merged:        dres.MergedCount,
			DeepEvaluated: evaluated,
			Failed:        failed,
			Selected:      len(selected),
		},
		FinalizedAt: time.Now().UTC(),
	}
	log.Info("finalized", "selected", res.Stats.Selected)
	return res, nil
}

// deepEvaluate runs the evaluator over items through a bounded worker
// pool. Each item is dispatched exactly once; results land back on the
// item by index, so output is deterministic regardless of completion
// order. Returns the number of items that failed after retries.
func (o *Orchestrator) deepEvaluate(ctx context.Context, items []item.Item) (failed int, err error) {
	if len(items) == 0 {
		return 0, nil
	}

	type outcome struct {
		idx  int
		dims map[string]float64
		err  error
	}

	jobs := make(chan int)
	results := make(chan outcome, len(items))

	var wg sync.WaitGroup
	for w := 0; w < o.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				it := items[idx]
				var dims map[string]float64
				callErr := o.opts.Retry.Do(ctx, func(ctx context.Context) error {
					callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
					defer cancel()
					var evalErr error
					dims, evalErr = o.evaluator.Evaluate(callCtx, &it)
					return evalErr
				})
				results <- outcome{idx: idx, dims: dims, err: callErr}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range items {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var outageErr error
	for out := range results {
		it := &items[out.idx]
		switch {
		case out.err == nil:
			it.Dimensions = out.dims
			final := o.scorer.FinalScore(out.dims)
			it.FinalScore = &final
			it.Status = item.StatusFullyScored
		case errors.Is(out.err, evaluate.ErrUnavailable):
			// Collaborator-wide outage: surface a retryable error
			// instead of silently truncating the output.
			outageErr = out.err
		default:
			o.log.Warn("evaluation failed", "item", it.ID, "error", out.err)
			it.Status = item.StatusEvaluationFailed
			failed++
		}
	}

	if outageErr != nil {
		return failed, fmt.Errorf("deep evaluation paused: %w", outageErr)
	}
	if ctx.Err() != nil {
		return failed, ctx.Err()
	}
	return failed, nil
}

// selectTop returns the top-N fully scored items ordered by final
// score, ties broken by recency then ID.
func selectTop(items []item.Item, n int) []item.Item {
	scored := make([]item.Item, 0, len(items))
	for _, it := range items {
		if it.Status == item.StatusFullyScored && it.FinalScore != nil {
			scored = append(scored, it)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if *scored[i].FinalScore != *scored[j].FinalScore {
			return *scored[i].FinalScore > *scored[j].FinalScore
		}
		if !scored[i].PublishedAt.Equal(scored[j].PublishedAt) {
			return scored[i].PublishedAt.After(scored[j].PublishedAt)
		}
		return scored[i].ID < scored[j].ID
	})

	if n > len(scored) {
		n = len(scored)
	}
	return scored[:n]
}
