package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-evaluator-go/internal/sheet"
	"call-evaluator-go/internal/types"
)

func eval(manager string, total int, greeting, objections types.Score) sheet.Evaluation {
	return sheet.Evaluation{
		Manager: manager,
		Total:   total,
		Scores: map[types.Category]types.Score{
			types.CategoryGreeting:          greeting,
			types.CategoryObjectionHandling: objections,
		},
	}
}

func TestAggregate(t *testing.T) {
	ins := Aggregate([]sheet.Evaluation{
		eval("Olga", 30, types.Points(10), types.Points(10)),
		eval("Olga", 20, types.Points(0), types.NotApplicable),
		eval("", 10, types.Points(5), types.Points(0)),
	})

	assert.Equal(t, 3, ins.Calls)
	assert.InDelta(t, 20.0, ins.AverageTotal, 1e-9)
	assert.InDelta(t, 0.5, ins.Categories[types.CategoryGreeting], 1e-9)
	// n/a scores are left out: (10+0)/(2*20)
	assert.InDelta(t, 0.25, ins.Categories[types.CategoryObjectionHandling], 1e-9)
	_, ok := ins.Categories[types.CategorySpeech]
	assert.False(t, ok, "categories without data are omitted")

	require.Len(t, ins.Managers, 2)
	assert.Equal(t, "Olga", ins.Managers[0].Manager)
	assert.Equal(t, 2, ins.Managers[0].Calls)
	assert.InDelta(t, 25.0, ins.Managers[0].AverageTotal, 1e-9)
	assert.InDelta(t, 0.5, ins.Managers[0].Categories[types.CategoryObjectionHandling], 1e-9)
	assert.Equal(t, "Unknown", ins.Managers[1].Manager)
}

func TestAggregate_Empty(t *testing.T) {
	ins := Aggregate(nil)
	assert.Zero(t, ins.Calls)
	assert.Zero(t, ins.AverageTotal)
	assert.Empty(t, ins.Managers)
}
