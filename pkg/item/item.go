package item

import (
	"fmt"
	"time"
)

// Status tracks where an item is in its lifecycle within a period.
type Status string

const (
	StatusCollected        Status = "collected"
	StatusPartiallyScored  Status = "partially_scored"
	StatusFullyScored      Status = "fully_scored"
	StatusEvaluationFailed Status = "evaluation_failed"
	StatusMerged           Status = "merged"
	StatusDiscarded        Status = "discarded"
)

// statusRank orders statuses so that updates never regress an item
// to an earlier lifecycle stage.
var statusRank = map[Status]int{
	StatusCollected:        0,
	StatusPartiallyScored:  1,
	StatusFullyScored:      2,
	StatusEvaluationFailed: 2,
	StatusMerged:           3,
	StatusDiscarded:        3,
}

// Advance returns the more advanced of two statuses. Equal ranks keep next.
func Advance(current, next Status) Status {
	if statusRank[next] < statusRank[current] {
		return current
	}
	return next
}

// Item is the standardized candidate content unit flowing through
// collection, deduplication, ranking and deep evaluation.
type Item struct {
	ID          string    `json:"id" db:"id"`
	PeriodID    string    `json:"period_id" db:"period_id"`
	Source      string    `json:"source" db:"source"`
	ExternalID  string    `json:"external_id" db:"external_id"`
	Title       string    `json:"title" db:"title"`
	Body        string    `json:"body" db:"body"`
	URL         string    `json:"url" db:"url"`
	Author      string    `json:"author" db:"author"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
	Status      Status    `json:"status" db:"status"`
	RunBatchID  string    `json:"run_batch_id" db:"run_batch_id"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	PartialScore *float64 `json:"partial_score,omitempty" db:"partial_score"`
	FinalScore   *float64 `json:"final_score,omitempty" db:"final_score"`
	TrendScore   *float64 `json:"trend_score,omitempty" db:"trend_score"`

	Entities    []string           `json:"entities" db:"-"`
	Dimensions  map[string]float64 `json:"dimensions,omitempty" db:"-"`
	AbsorbedIDs []string           `json:"absorbed_ids,omitempty" db:"-"`

	EntitiesJSON   string `json:"-" db:"entities"`
	DimensionsJSON string `json:"-" db:"dimensions"`
	AbsorbedJSON   string `json:"-" db:"absorbed_ids"`
}

// MakeID derives the stable item ID from its natural key. The same
// (source, externalID) pair always maps to the same ID, so re-ingesting
// an item in a later run addresses the existing record.
func MakeID(source, externalID string) string {
	return fmt.Sprintf("%s:%s", source, externalID)
}

// BestScore returns the item's best known score, preferring the final
// score over the partial one. ok is false when neither is set.
func (it *Item) BestScore() (score float64, ok bool) {
	if it.FinalScore != nil {
		return *it.FinalScore, true
	}
	if it.PartialScore != nil {
		return *it.PartialScore, true
	}
	return 0, false
}

// Live reports whether the item still participates in consolidation.
func (it *Item) Live() bool {
	return it.Status != StatusDiscarded && it.Status != StatusMerged
}
