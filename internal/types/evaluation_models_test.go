package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_UnmarshalAcceptsNumbersAndNA(t *testing.T) {
	var rec EvaluationRecord
	raw := `{
		"greeting_score": 10,
		"needs_analysis_score": "20",
		"presentation_score": "n/a",
		"closing_score": null,
		"summary_score": 5.0,
		"objection_handling_score": "N/A",
		"speech_score": 0,
		"total_score": 999
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	assert.Equal(t, Points(10), rec.GreetingScore)
	assert.Equal(t, Points(20), rec.NeedsAnalysisScore)
	assert.False(t, rec.PresentationScore.Applicable)
	assert.False(t, rec.ClosingScore.Applicable)
	assert.Equal(t, Points(5), rec.SummaryScore)
	assert.False(t, rec.ObjectionHandlingScore.Applicable)
	assert.Equal(t, Points(0), rec.SpeechScore)

	assert.Equal(t, 35, rec.RecomputeTotal())
	assert.Equal(t, 35, rec.TotalScore)
}

func TestScore_UnmarshalRejectsGarbage(t *testing.T) {
	var s Score
	assert.Error(t, json.Unmarshal([]byte(`"excellent"`), &s))
}

func TestScore_Marshal(t *testing.T) {
	b, err := json.Marshal(struct {
		A Score `json:"a"`
		B Score `json:"b"`
	}{A: Points(5), B: NotApplicable})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":5,"b":"n/a"}`, string(b))
	assert.Equal(t, "n/a", NotApplicable.String())
	assert.Equal(t, "10", Points(10).String())
}

func TestLocation_String(t *testing.T) {
	assert.Equal(t, "Evaluations!A7", Location{Sheet: "Evaluations", Row: 7}.String())
}
