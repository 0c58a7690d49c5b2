package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DragonSun329/briefAI-sub001/internal/checkpoint"
	"github.com/DragonSun329/briefAI-sub001/pkg/entity"
	"github.com/DragonSun329/briefAI-sub001/pkg/item"
	"github.com/stretchr/testify/require"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Test Feed</title>
  <item>
    <title>Acme launches Model X</title>
    <link>https://example.com/model-x</link>
    <guid>model-x-1</guid>
    <description>&lt;p&gt;The &lt;b&gt;flagship&lt;/b&gt; model shipped today.&lt;/p&gt;</description>
    <pubDate>%s</pubDate>
  </item>
  <item>
    <title>Ancient news</title>
    <link>https://example.com/old</link>
    <guid>old-1</guid>
    <description>stale</description>
    <pubDate>%s</pubDate>
  </item>
</channel>
</rss>`

func TestRSSCollect(t *testing.T) {
	fresh := time.Now().Add(-2 * time.Hour).Format(time.RFC1123Z)
	stale := time.Now().Add(-30 * 24 * time.Hour).Format(time.RFC1123Z)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, feedXML, fresh, stale)
	}))
	defer srv.Close()

	rss := NewRSS([]RSSFeed{{Name: "test", URL: srv.URL}}, 7*24*time.Hour)
	items, err := rss.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1, "entries older than the lookback are dropped")

	got := items[0]
	require.Equal(t, "rss:test", got.Source)
	require.Equal(t, "model-x-1", got.ExternalID)
	require.Equal(t, item.MakeID("rss:test", "model-x-1"), got.ID)
	require.Equal(t, "Acme launches Model X", got.Title)
	require.Contains(t, got.Body, "flagship")
	require.NotContains(t, got.Body, "<p>", "HTML is converted to text")
	require.Equal(t, item.StatusCollected, got.Status)
}

func TestRSSCollectDeadFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rss := NewRSS([]RSSFeed{{Name: "dead", URL: srv.URL}}, time.Hour)
	_, err := rss.Collect(context.Background())
	require.Error(t, err)
}

// memStore records appended batches.
type memStore struct {
	appended map[string][]item.Item
	batchIDs []string
	sealed   bool
}

func (m *memStore) AppendItems(_ context.Context, periodID, runBatchID string, items []item.Item) error {
	if m.sealed {
		return checkpoint.ErrSealed
	}
	if m.appended == nil {
		m.appended = make(map[string][]item.Item)
	}
	m.appended[periodID] = append(m.appended[periodID], items...)
	m.batchIDs = append(m.batchIDs, runBatchID)
	return nil
}

func (m *memStore) LoadPeriod(context.Context, string) ([]item.Item, error)   { return nil, nil }
func (m *memStore) SealPeriod(context.Context, string) ([]item.Item, error)   { return nil, nil }
func (m *memStore) SaveResults(context.Context, string, []item.Item) error    { return nil }
func (m *memStore) ArchivePeriod(context.Context, string) error               { return nil }
func (m *memStore) Period(context.Context, string) (*checkpoint.PeriodInfo, error) {
	return nil, checkpoint.ErrNotFound
}
func (m *memStore) CountByStatus(context.Context, string) (map[item.Status]int, error) {
	return nil, nil
}
func (m *memStore) Close() error { return nil }

type staticCollector struct {
	items []item.Item
	err   error
}

func (c *staticCollector) Name() string { return "static" }
func (c *staticCollector) Collect(context.Context) ([]item.Item, error) {
	return c.items, c.err
}

type mapScorer struct {
	scores map[string]float64
	err    error
}

func (s *mapScorer) ScoreBatch(context.Context, []item.Item) (map[string]float64, error) {
	return s.scores, s.err
}

func TestRunnerAppendsScoredBatch(t *testing.T) {
	items := []item.Item{
		{ID: "rss:a:1", Source: "rss:a", ExternalID: "1", Title: "Anthropic ships Claude update", Body: "details"},
		{ID: "rss:a:2", Source: "rss:a", ExternalID: "2", Title: "unrelated", Body: "words"},
	}
	store := &memStore{}
	scorer := &mapScorer{scores: map[string]float64{"rss:a:1": 7.5}}
	r := NewRunner(store, []Collector{&staticCollector{items: items}},
		entity.NewKeywordExtractor(nil), scorer, nil)

	sum, err := r.Run(context.Background(), "2026-W35")
	require.NoError(t, err)
	require.Equal(t, 2, sum.Collected)
	require.Equal(t, 1, sum.Scored)
	require.NotEmpty(t, sum.RunBatchID)

	appended := store.appended["2026-W35"]
	require.Len(t, appended, 2)
	require.Contains(t, appended[0].Entities, "anthropic")
	require.NotNil(t, appended[0].PartialScore)
	require.Equal(t, 7.5, *appended[0].PartialScore)
	require.Equal(t, item.StatusPartiallyScored, appended[0].Status)
	require.Nil(t, appended[1].PartialScore)
}

func TestRunnerSkipsFailedCollector(t *testing.T) {
	store := &memStore{}
	good := &staticCollector{items: []item.Item{{ID: "rss:a:1", Source: "rss:a", ExternalID: "1", Title: "ok"}}}
	bad := &staticCollector{err: errors.New("network down")}
	r := NewRunner(store, []Collector{bad, good}, entity.NewKeywordExtractor(nil), nil, nil)

	sum, err := r.Run(context.Background(), "2026-W35")
	require.NoError(t, err)
	require.Equal(t, 1, sum.Collected)
	require.Zero(t, sum.Scored)
}

func TestRunnerSealedPeriodFails(t *testing.T) {
	store := &memStore{sealed: true}
	c := &staticCollector{items: []item.Item{{ID: "rss:a:1", Source: "rss:a", ExternalID: "1", Title: "ok"}}}
	r := NewRunner(store, []Collector{c}, entity.NewKeywordExtractor(nil), nil, nil)

	_, err := r.Run(context.Background(), "2026-W35")
	require.ErrorIs(t, err, checkpoint.ErrSealed)
}
