// Package dedup clusters near-duplicate items and merges each cluster
// down to a single representative.
//
// Clustering runs union-find over the pairwise duplicate relation. The
// pairwise relation is not transitive, so a cluster is an approximation
// of semantic equivalence, not a guarantee: a chain a~b, b~c pulls a and
// c together even when a and c compare below threshold.
package dedup

import (
	"errors"
	"fmt"
	"sort"

	"github.com/DragonSun329/briefAI-sub001/pkg/item"
	"github.com/DragonSun329/briefAI-sub001/pkg/similarity"
)

// Strategy selects how the three similarity signals combine into a
// duplicate verdict.
type Strategy string

const (
	// StrategyCombined merges when any one signal crosses its threshold.
	StrategyCombined Strategy = "combined"
	// StrategyCombinedStrict merges only when all three signals cross
	// their thresholds. It always merges a subset of StrategyCombined.
	StrategyCombinedStrict Strategy = "combined_strict"
)

// ErrConfiguration reports an invalid strategy or threshold set.
var ErrConfiguration = errors.New("invalid dedup configuration")

// Thresholds are the per-signal duplicate cutoffs, each in (0,1].
type Thresholds struct {
	Title   float64 `yaml:"title"`
	Content float64 `yaml:"content"`
	Entity  float64 `yaml:"entity"`
}

// DefaultThresholds returns the calibrated default cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Title: 0.88, Content: 0.80, Entity: 0.75}
}

// Validate checks that every threshold lies in (0,1].
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"title": t.Title, "content": t.Content, "entity": t.Entity} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%w: %s threshold %.2f outside (0,1]", ErrConfiguration, name, v)
		}
	}
	return nil
}

// Engine clusters and merges duplicate items.
type Engine struct {
	strategy   Strategy
	thresholds Thresholds
}

// New creates a deduplication engine for the given strategy.
func New(strategy Strategy, thresholds Thresholds) (*Engine, error) {
	switch strategy {
	case StrategyCombined, StrategyCombinedStrict:
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrConfiguration, strategy)
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Engine{strategy: strategy, thresholds: thresholds}, nil
}

// Result is the outcome of one deduplication pass.
type Result struct {
	// Survivors are the items still in play: cluster representatives
	// plus everything that matched nothing.
	Survivors []item.Item
	// Merged are the absorbed cluster members, retained for audit.
	Merged []item.Item
	// MergedCount is len(Merged), exposed for summary statistics.
	MergedCount int
	// Clusters lists the member IDs of every multi-item cluster.
	Clusters [][]string
}

// Run clusters the input and merges each cluster. Input items are not
// mutated; the result carries copies.
func (e *Engine) Run(items []item.Item) Result {
	n := len(items)
	if n == 0 {
		return Result{}
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(x, y int) {
		px, py := find(x), find(y)
		if px != py {
			parent[px] = py
		}
	}

	for _, p := range candidatePairs(items) {
		if e.isDuplicate(&items[p[0]], &items[p[1]]) {
			union(p[0], p[1])
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		groups[root] = append(groups[root], i)
	}

	// Deterministic output order: roots by smallest member index.
	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		return groups[roots[i]][0] < groups[roots[j]][0]
	})

	var res Result
	for _, root := range roots {
		indices := groups[root]
		if len(indices) == 1 {
			res.Survivors = append(res.Survivors, items[indices[0]])
			continue
		}

		members := make([]item.Item, len(indices))
		ids := make([]string, len(indices))
		for i, idx := range indices {
			members[i] = items[idx]
			ids[i] = items[idx].ID
		}
		sort.Strings(ids)

		rep, absorbed := mergeCluster(members)
		res.Survivors = append(res.Survivors, rep)
		res.Merged = append(res.Merged, absorbed...)
		res.Clusters = append(res.Clusters, ids)
	}
	res.MergedCount = len(res.Merged)
	return res
}

// isDuplicate applies the strategy's combination of signals.
func (e *Engine) isDuplicate(a, b *item.Item) bool {
	title := similarity.Title(a.Title, b.Title) >= e.thresholds.Title
	content := similarity.Content(a.Body, b.Body) >= e.thresholds.Content
	entity := similarity.EntityOverlap(a.Entities, b.Entities) >= e.thresholds.Entity

	if e.strategy == StrategyCombinedStrict {
		return title && content && entity
	}
	return title || content || entity
}

// mergeCluster picks the representative and folds the rest into it.
// The representative is the member with the highest defined score
// (final over partial), ties broken by earliest publish time then by
// smallest ID. Its best score is raised to the cluster maximum and it
// absorbs the provenance of every member, transitively.
func mergeCluster(members []item.Item) (rep item.Item, absorbed []item.Item) {
	best := 0
	for i := 1; i < len(members); i++ {
		if betterRepresentative(&members[i], &members[best]) {
			best = i
		}
	}
	rep = members[best]

	maxScore, haveScore := rep.BestScore()
	provenance := map[string]bool{}
	for _, id := range rep.AbsorbedIDs {
		provenance[id] = true
	}

	for i := range members {
		if i == best {
			continue
		}
		m := members[i]
		if s, ok := m.BestScore(); ok && (!haveScore || s > maxScore) {
			maxScore, haveScore = s, true
		}
		provenance[m.ID] = true
		for _, id := range m.AbsorbedIDs {
			provenance[id] = true
		}
		m.Status = item.StatusMerged
		absorbed = append(absorbed, m)
	}

	if haveScore {
		if rep.FinalScore != nil {
			if maxScore > *rep.FinalScore {
				s := maxScore
				rep.FinalScore = &s
			}
		} else if rep.PartialScore == nil || maxScore > *rep.PartialScore {
			s := maxScore
			rep.PartialScore = &s
		}
	}

	rep.AbsorbedIDs = make([]string, 0, len(provenance))
	for id := range provenance {
		rep.AbsorbedIDs = append(rep.AbsorbedIDs, id)
	}
	sort.Strings(rep.AbsorbedIDs)

	return rep, absorbed
}

func betterRepresentative(a, b *item.Item) bool {
	sa, oka := a.BestScore()
	sb, okb := b.BestScore()
	if oka != okb {
		return oka
	}
	if oka && sa != sb {
		return sa > sb
	}
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.Before(b.PublishedAt)
	}
	return a.ID < b.ID
}

// maxPairwise bounds the full O(n²) comparison. Larger inputs are
// pre-bucketed by coarse signature (shared entity, or source-day) so
// only plausibly related pairs get the full three-signal comparison.
const maxPairwise = 400

func candidatePairs(items []item.Item) [][2]int {
	n := len(items)
	if n <= maxPairwise {
		pairs := make([][2]int, 0, n*(n-1)/2)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, [2]int{i, j})
			}
		}
		return pairs
	}

	buckets := make(map[string][]int)
	for i, it := range items {
		buckets[it.Source+"|"+it.PublishedAt.UTC().Format("2006-01-02")] = append(
			buckets[it.Source+"|"+it.PublishedAt.UTC().Format("2006-01-02")], i)
		for _, e := range it.Entities {
			buckets["e|"+e] = append(buckets["e|"+e], i)
		}
	}

	seen := make(map[[2]int]bool)
	var pairs [][2]int
	for _, indices := range buckets {
		for i := 0; i < len(indices); i++ {
			for j := i + 1; j < len(indices); j++ {
				p := [2]int{indices[i], indices[j]}
				if p[0] > p[1] {
					p[0], p[1] = p[1], p[0]
				}
				if !seen[p] {
					seen[p] = true
					pairs = append(pairs, p)
				}
			}
		}
	}
	return pairs
}
