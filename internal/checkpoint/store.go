// Package checkpoint persists per-period item records across collection
// runs. A period is append-only until sealed; once sealed it accepts no
// further appends and consolidation derives its results from a snapshot.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/DragonSun329/briefAI-sub001/pkg/item"
)

var (
	// ErrNotFound reports a period with no records.
	ErrNotFound = errors.New("period not found")
	// ErrSealed reports an append attempted after the period was sealed.
	ErrSealed = errors.New("period is sealed")
	// ErrAlreadySealed reports a second seal of the same period.
	ErrAlreadySealed = errors.New("period already sealed")
)

// PeriodInfo summarizes a period's state.
type PeriodInfo struct {
	ID        string    `db:"id"`
	Sealed    bool      `db:"sealed"`
	Archived  bool      `db:"archived"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store is the checkpoint persistence contract.
type Store interface {
	// AppendItems upserts a run batch into a period by natural key
	// (source, external id). Re-submitting an identical batch is a
	// no-op; content updates advance status monotonically. Returns
	// ErrSealed once the period is sealed.
	AppendItems(ctx context.Context, periodID, runBatchID string, items []item.Item) error

	// LoadPeriod returns the live (non-discarded) items of a period in
	// (published_at, id) order, or ErrNotFound for an unknown period.
	LoadPeriod(ctx context.Context, periodID string) ([]item.Item, error)

	// SealPeriod makes the period read-only and returns the snapshot.
	// Sealing twice returns ErrAlreadySealed.
	SealPeriod(ctx context.Context, periodID string) ([]item.Item, error)

	// SaveResults records consolidation outcomes (status, scores,
	// dimensions, provenance) on existing item rows. Content columns
	// are never touched, preserving the sealed append log.
	SaveResults(ctx context.Context, periodID string, items []item.Item) error

	// ArchivePeriod marks a finalized period as archived.
	ArchivePeriod(ctx context.Context, periodID string) error

	// Period returns the period's state, or ErrNotFound.
	Period(ctx context.Context, periodID string) (*PeriodInfo, error)

	// CountByStatus breaks the period's item count down by status.
	CountByStatus(ctx context.Context, periodID string) (map[item.Status]int, error)

	Close() error
}

// SQLiteStore implements Store on SQLite. WAL mode plus a transaction
// per append keeps every acknowledged batch durable; a keyed mutex
// serializes concurrent appends to the same period while leaving
// different periods fully independent.
type SQLiteStore struct {
	db *sqlx.DB

	mu      sync.Mutex
	periods map[string]*sync.Mutex
}

// New opens the SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, periods: make(map[string]*sync.Mutex)}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) periodLock(periodID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.periods[periodID]; !ok {
		s.periods[periodID] = &sync.Mutex{}
	}
	return s.periods[periodID]
}

func (s *SQLiteStore) AppendItems(ctx context.Context, periodID, runBatchID string, items []item.Item) error {
	lock := s.periodLock(periodID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	sealed, err := ensurePeriod(ctx, tx, periodID)
	if err != nil {
		return err
	}
	if sealed {
		return fmt.Errorf("append to %s: %w", periodID, ErrSealed)
	}

	now := time.Now().UTC()
	for i := range items {
		it := items[i]
		it.PeriodID = periodID
		it.RunBatchID = runBatchID
		it.UpdatedAt = now
		if it.ID == "" {
			it.ID = item.MakeID(it.Source, it.ExternalID)
		}
		if it.Status == "" {
			it.Status = item.StatusCollected
		}

		// Status never regresses on re-ingestion.
		var current item.Status
		err := tx.GetContext(ctx, &current,
			"SELECT status FROM items WHERE period_id = ? AND source = ? AND external_id = ?",
			periodID, it.Source, it.ExternalID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("lookup item %s: %w", it.ID, err)
		default:
			it.Status = item.Advance(current, it.Status)
		}

		if err := upsertItem(ctx, tx, &it); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE periods SET updated_at = ? WHERE id = ?", now, periodID); err != nil {
		return fmt.Errorf("touch period %s: %w", periodID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func ensurePeriod(ctx context.Context, tx *sqlx.Tx, periodID string) (sealed bool, err error) {
	err = tx.GetContext(ctx, &sealed, "SELECT sealed FROM periods WHERE id = ?", periodID)
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO periods (id, sealed, archived, created_at, updated_at) VALUES (?, 0, 0, ?, ?)",
			periodID, now, now); err != nil {
			return false, fmt.Errorf("create period %s: %w", periodID, err)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load period %s: %w", periodID, err)
	}
	return sealed, nil
}

func upsertItem(ctx context.Context, tx *sqlx.Tx, it *item.Item) error {
	entitiesJSON, _ := json.Marshal(it.Entities)
	dimsJSON, _ := json.Marshal(it.Dimensions)
	absorbedJSON, _ := json.Marshal(it.AbsorbedIDs)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO items (id, period_id, source, external_id, title, body, url, author,
			published_at, status, run_batch_id, updated_at,
			partial_score, final_score, trend_score, entities, dimensions, absorbed_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_id, source, external_id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			url = excluded.url,
			author = excluded.author,
			published_at = excluded.published_at,
			status = excluded.status,
			run_batch_id = excluded.run_batch_id,
			updated_at = excluded.updated_at,
			partial_score = COALESCE(excluded.partial_score, items.partial_score),
			trend_score = COALESCE(excluded.trend_score, items.trend_score),
			entities = excluded.entities
	`, it.ID, it.PeriodID, it.Source, it.ExternalID, it.Title, it.Body, it.URL, it.Author,
		it.PublishedAt.UTC(), it.Status, it.RunBatchID, it.UpdatedAt,
		it.PartialScore, it.FinalScore, it.TrendScore,
		string(entitiesJSON), string(dimsJSON), string(absorbedJSON))
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", it.ID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadPeriod(ctx context.Context, periodID string) ([]item.Item, error) {
	if _, err := s.Period(ctx, periodID); err != nil {
		return nil, err
	}
	return s.loadItems(ctx, periodID)
}

func (s *SQLiteStore) loadItems(ctx context.Context, periodID string) ([]item.Item, error) {
	query, args, err := sq.Select("*").
		From("items").
		Where(sq.Eq{"period_id": periodID}).
		Where(sq.NotEq{"status": item.StatusDiscarded}).
		OrderBy("published_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build load query: %w", err)
	}

	var items []item.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("load period %s: %w", periodID, err)
	}

	for i := range items {
		json.Unmarshal([]byte(items[i].EntitiesJSON), &items[i].Entities)
		json.Unmarshal([]byte(items[i].DimensionsJSON), &items[i].Dimensions)
		json.Unmarshal([]byte(items[i].AbsorbedJSON), &items[i].AbsorbedIDs)
	}
	return items, nil
}

func (s *SQLiteStore) SealPeriod(ctx context.Context, periodID string) ([]item.Item, error) {
	lock := s.periodLock(periodID)
	lock.Lock()
	defer lock.Unlock()

	info, err := s.Period(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if info.Sealed {
		return nil, fmt.Errorf("seal %s: %w", periodID, ErrAlreadySealed)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE periods SET sealed = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), periodID); err != nil {
		return nil, fmt.Errorf("seal period %s: %w", periodID, err)
	}

	return s.loadItems(ctx, periodID)
}

func (s *SQLiteStore) SaveResults(ctx context.Context, periodID string, items []item.Item) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range items {
		it := &items[i]
		dimsJSON, _ := json.Marshal(it.Dimensions)
		absorbedJSON, _ := json.Marshal(it.AbsorbedIDs)

		if _, err := tx.ExecContext(ctx, `
			UPDATE items SET status = ?, partial_score = ?, final_score = ?,
				dimensions = ?, absorbed_ids = ?, updated_at = ?
			WHERE period_id = ? AND id = ?
		`, it.Status, it.PartialScore, it.FinalScore,
			string(dimsJSON), string(absorbedJSON), now, periodID, it.ID); err != nil {
			return fmt.Errorf("save result %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ArchivePeriod(ctx context.Context, periodID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE periods SET archived = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), periodID)
	if err != nil {
		return fmt.Errorf("archive period %s: %w", periodID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("archive %s: %w", periodID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Period(ctx context.Context, periodID string) (*PeriodInfo, error) {
	var info PeriodInfo
	err := s.db.GetContext(ctx, &info, "SELECT * FROM periods WHERE id = ?", periodID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("period %s: %w", periodID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get period %s: %w", periodID, err)
	}
	return &info, nil
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, periodID string) (map[item.Status]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT status, COUNT(*) AS cnt FROM items WHERE period_id = ? GROUP BY status", periodID)
	if err != nil {
		return nil, fmt.Errorf("count by status %s: %w", periodID, err)
	}
	defer rows.Close()

	counts := make(map[item.Status]int)
	for rows.Next() {
		var status string
		var cnt int
		if err := rows.Scan(&status, &cnt); err != nil {
			return nil, err
		}
		counts[item.Status(status)] = cnt
	}
	return counts, rows.Err()
}
