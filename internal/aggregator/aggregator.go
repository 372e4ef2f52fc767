package aggregator

import (
	"sort"

	"call-evaluator-go/internal/sheet"
	"call-evaluator-go/internal/types"
)

// MaxPoints is the top score of each category in the evaluation rubric.
var MaxPoints = map[types.Category]int{
	types.CategoryGreeting:          10,
	types.CategoryNeedsAnalysis:     20,
	types.CategoryPresentation:      20,
	types.CategoryClosing:           10,
	types.CategorySummary:           10,
	types.CategoryObjectionHandling: 20,
	types.CategorySpeech:            10,
}

type ManagerStats struct {
	Manager      string                     `json:"manager"`
	Calls        int                        `json:"calls"`
	AverageTotal float64                    `json:"average_total"`
	Categories   map[types.Category]float64 `json:"categories"`
}

// Insight summarizes stored evaluations. Category values are the share of
// the category maximum reached on average (0..1), over applicable scores.
type Insight struct {
	Calls        int                        `json:"calls"`
	AverageTotal float64                    `json:"average_total"`
	Categories   map[types.Category]float64 `json:"categories"`
	Managers     []ManagerStats             `json:"managers"`
}

type acc struct {
	calls int
	total int
	sum   map[types.Category]int
	n     map[types.Category]int
}

func newAcc() *acc {
	return &acc{sum: map[types.Category]int{}, n: map[types.Category]int{}}
}

func (a *acc) add(ev sheet.Evaluation) {
	a.calls++
	a.total += ev.Total
	for c, s := range ev.Scores {
		if !s.Applicable {
			continue
		}
		a.sum[c] += s.Value
		a.n[c]++
	}
}

func (a *acc) categories() map[types.Category]float64 {
	out := map[types.Category]float64{}
	for _, c := range types.Categories {
		if a.n[c] == 0 || MaxPoints[c] == 0 {
			continue
		}
		out[c] = float64(a.sum[c]) / float64(a.n[c]*MaxPoints[c])
	}
	return out
}

func (a *acc) averageTotal() float64 {
	if a.calls == 0 {
		return 0
	}
	return float64(a.total) / float64(a.calls)
}

func Aggregate(records []sheet.Evaluation) Insight {
	all := newAcc()
	byManager := map[string]*acc{}
	for _, r := range records {
		all.add(r)
		m := r.Manager
		if m == "" {
			m = "Unknown"
		}
		if byManager[m] == nil {
			byManager[m] = newAcc()
		}
		byManager[m].add(r)
	}

	ins := Insight{
		Calls:        all.calls,
		AverageTotal: all.averageTotal(),
		Categories:   all.categories(),
		Managers:     make([]ManagerStats, 0, len(byManager)),
	}
	for name, a := range byManager {
		ins.Managers = append(ins.Managers, ManagerStats{
			Manager:      name,
			Calls:        a.calls,
			AverageTotal: a.averageTotal(),
			Categories:   a.categories(),
		})
	}
	sort.Slice(ins.Managers, func(i, j int) bool { return ins.Managers[i].Manager < ins.Managers[j].Manager })
	return ins
}
