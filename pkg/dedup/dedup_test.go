package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/DragonSun329/briefAI-sub001/pkg/item"
	"github.com/stretchr/testify/require"
)

func fl(v float64) *float64 { return &v }

func testItem(id, title, body string, entities []string, published time.Time) item.Item {
	return item.Item{
		ID:          id,
		Title:       title,
		Body:        body,
		Entities:    entities,
		PublishedAt: published,
		Status:      item.StatusCollected,
	}
}

var baseTime = time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New("fancy", DefaultThresholds())
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = New(StrategyCombined, Thresholds{Title: 0, Content: 0.8, Entity: 0.75})
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = New(StrategyCombined, Thresholds{Title: 0.88, Content: 1.2, Entity: 0.75})
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = New(StrategyCombinedStrict, DefaultThresholds())
	require.NoError(t, err)
}

func TestRunBelowThresholdsNotMerged(t *testing.T) {
	eng, err := New(StrategyCombined, DefaultThresholds())
	require.NoError(t, err)

	// Near-duplicate titles below 0.88, moderately similar content,
	// disjoint entities: no single signal crosses its cutoff.
	a := testItem("rss:a:1", "Model X launches",
		"The company shipped its flagship model to all customers today.",
		[]string{"acme"}, baseTime)
	b := testItem("rss:b:2", "Model X launch announced",
		"An announcement covered pricing, availability and partner integrations in detail.",
		[]string{"globex"}, baseTime.Add(time.Hour))

	res := eng.Run([]item.Item{a, b})
	require.Len(t, res.Survivors, 2)
	require.Zero(t, res.MergedCount)
	require.Empty(t, res.Clusters)
}

func TestRunMergeKeepsMaxScore(t *testing.T) {
	eng, err := New(StrategyCombined, DefaultThresholds())
	require.NoError(t, err)

	a := testItem("rss:a:1", "Anthropic releases Claude model update",
		"body one", []string{"anthropic", "claude"}, baseTime)
	a.PartialScore = fl(4.0)
	b := testItem("rss:b:2", "Anthropic releases Claude model update today",
		"body two entirely different", []string{"anthropic", "claude"}, baseTime.Add(time.Hour))
	b.PartialScore = fl(7.5)

	res := eng.Run([]item.Item{a, b})
	require.Len(t, res.Survivors, 1)
	require.Equal(t, 1, res.MergedCount)

	rep := res.Survivors[0]
	require.Equal(t, "rss:b:2", rep.ID, "highest-scored member is the representative")
	score, ok := rep.BestScore()
	require.True(t, ok)
	require.Equal(t, 7.5, score)
	require.Equal(t, []string{"rss:a:1"}, rep.AbsorbedIDs)

	require.Equal(t, item.StatusMerged, res.Merged[0].Status)
	require.Equal(t, "rss:a:1", res.Merged[0].ID)
}

func TestRepresentativeScoreMonotone(t *testing.T) {
	eng, err := New(StrategyCombined, DefaultThresholds())
	require.NoError(t, err)

	// a carries a final score, b only a higher partial one. Whatever
	// member wins the representative contest must end up holding the
	// cluster maximum.
	a := testItem("rss:a:1", "Big model release", "shared body text about the release",
		[]string{"acme", "modelx"}, baseTime)
	a.FinalScore = fl(6.0)
	b := testItem("rss:b:2", "Big model release", "shared body text about the release",
		[]string{"acme", "modelx"}, baseTime.Add(time.Minute))
	b.PartialScore = fl(9.0)

	res := eng.Run([]item.Item{a, b})
	require.Len(t, res.Survivors, 1)

	rep := res.Survivors[0]
	score, ok := rep.BestScore()
	require.True(t, ok)
	require.GreaterOrEqual(t, score, 9.0)
}

func TestRepresentativeTieBreaks(t *testing.T) {
	eng, err := New(StrategyCombined, DefaultThresholds())
	require.NoError(t, err)

	// Equal scores: earliest publish time wins; equal times: smallest ID.
	a := testItem("rss:z:9", "Identical headline here", "same body", []string{"e1"}, baseTime)
	a.PartialScore = fl(5.0)
	b := testItem("rss:a:1", "Identical headline here", "same body", []string{"e1"}, baseTime)
	b.PartialScore = fl(5.0)

	res := eng.Run([]item.Item{a, b})
	require.Len(t, res.Survivors, 1)
	require.Equal(t, "rss:a:1", res.Survivors[0].ID)

	c := testItem("rss:c:3", "Identical headline here", "same body", []string{"e1"}, baseTime.Add(-time.Hour))
	c.PartialScore = fl(5.0)
	res = eng.Run([]item.Item{a, b, c})
	require.Len(t, res.Survivors, 1)
	require.Equal(t, "rss:c:3", res.Survivors[0].ID, "earliest publish time wins the tie")
}

func TestProvenanceTransitivelyClosed(t *testing.T) {
	eng, err := New(StrategyCombined, DefaultThresholds())
	require.NoError(t, err)

	// a already absorbed an item in a previous pass.
	a := testItem("rss:a:1", "Same story twice over", "one body", []string{"e1", "e2"}, baseTime)
	a.PartialScore = fl(8.0)
	a.AbsorbedIDs = []string{"rss:old:0"}
	b := testItem("rss:b:2", "Same story twice over", "another body", []string{"e1", "e2"}, baseTime)
	b.PartialScore = fl(3.0)
	b.AbsorbedIDs = []string{"rss:older:7"}

	res := eng.Run([]item.Item{a, b})
	require.Len(t, res.Survivors, 1)
	require.Equal(t, []string{"rss:b:2", "rss:old:0", "rss:older:7"}, res.Survivors[0].AbsorbedIDs)
}

func TestStrictMergesSubsetOfCombined(t *testing.T) {
	items := []item.Item{
		// Title match only.
		testItem("i:1", "Exactly the same headline text", "totally distinct body alpha beta gamma", []string{"e1"}, baseTime),
		testItem("i:2", "Exactly the same headline text", "unrelated content delta epsilon zeta", []string{"e2"}, baseTime),
		// All three signals match.
		testItem("i:3", "Another shared headline wording", "identical body copy for the pair", []string{"x", "y"}, baseTime),
		testItem("i:4", "Another shared headline wording", "identical body copy for the pair", []string{"x", "y"}, baseTime),
		// Matches nothing.
		testItem("i:5", "Quarterly chip market figures", "supply chains recovered slowly this quarter", []string{"tsmc"}, baseTime),
	}

	combined, err := New(StrategyCombined, DefaultThresholds())
	require.NoError(t, err)
	strict, err := New(StrategyCombinedStrict, DefaultThresholds())
	require.NoError(t, err)

	cRes := combined.Run(items)
	sRes := strict.Run(items)

	require.Equal(t, 2, cRes.MergedCount)
	require.Equal(t, 1, sRes.MergedCount)
	require.LessOrEqual(t, sRes.MergedCount, cRes.MergedCount)

	// Every strict-merged ID was also merged by combined.
	cMerged := make(map[string]bool)
	for _, m := range cRes.Merged {
		cMerged[m.ID] = true
	}
	for _, m := range sRes.Merged {
		require.True(t, cMerged[m.ID], "strict merged %s but combined did not", m.ID)
	}
}

// TestRunCorpusMergeFraction runs the combined strategy over a corpus
// of 150 items: 50 stories that each appear twice (a syndicated rewrite
// with the same body and one extra title word) and 50 stories that
// appear once. Exactly the rewrites must fold away; distinct stories
// sharing only generic vocabulary ("unveils", "workloads") must never
// merge, keeping the merged fraction near a third rather than
// collapsing most of the corpus.
func TestRunCorpusMergeFraction(t *testing.T) {
	eng, err := New(StrategyCombined, DefaultThresholds())
	require.NoError(t, err)

	var items []item.Item
	pairIDs := make(map[string]string) // original -> rewrite
	for i := 0; i < 100; i++ {
		title := fmt.Sprintf("vendor%03d unveils tool%03d for sector%03d workloads", i, i, i)
		body := fmt.Sprintf("vendor%03d announced tool%03d targeting sector%03d customers with pricing tier%03d", i, i, i, i)
		entities := []string{fmt.Sprintf("org%03d", i)}

		id := fmt.Sprintf("rss:a:%03d", i)
		items = append(items, testItem(id, title, body, entities, baseTime.Add(time.Duration(i)*time.Minute)))

		if i < 50 {
			rewriteID := fmt.Sprintf("rss:b:%03d", i)
			pairIDs[id] = rewriteID
			items = append(items, testItem(rewriteID, title+" today", body, entities,
				baseTime.Add(time.Duration(i)*time.Minute+time.Hour)))
		}
	}
	require.Len(t, items, 150)

	res := eng.Run(items)

	require.Equal(t, 50, res.MergedCount)
	require.Len(t, res.Survivors, 100)
	fraction := float64(res.MergedCount) / float64(len(items))
	require.Greater(t, fraction, 0.25)
	require.Less(t, fraction, 0.45, "distinct stories must not be dragged into clusters")

	// Every cluster is exactly one planned original/rewrite pair.
	require.Len(t, res.Clusters, 50)
	for _, cluster := range res.Clusters {
		require.Len(t, cluster, 2)
		require.Equal(t, pairIDs[cluster[0]], cluster[1])
	}
}

func TestRunEmptyInput(t *testing.T) {
	eng, err := New(StrategyCombined, DefaultThresholds())
	require.NoError(t, err)
	res := eng.Run(nil)
	require.Empty(t, res.Survivors)
	require.Zero(t, res.MergedCount)
}
