// internal/types/evaluation_models.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------
// Score: allowed values are a small integer set or "n/a"
// --------------------------------------------
type Score struct {
	Value      int
	Applicable bool
}

func Points(v int) Score { return Score{Value: v, Applicable: true} }

var NotApplicable = Score{}

func (s Score) String() string {
	if !s.Applicable {
		return "n/a"
	}
	return strconv.Itoa(s.Value)
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Applicable {
		return []byte(`"n/a"`), nil
	}
	return []byte(strconv.Itoa(s.Value)), nil
}

func (s *Score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = NotApplicable
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" || strings.EqualFold(str, "n/a") || strings.EqualFold(str, "na") {
			*s = NotApplicable
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("score: unexpected value %q", str)
		}
		*s = Points(int(v))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("score: %w", err)
	}
	*s = Points(int(f))
	return nil
}

// --------------------------------------------
// Category keys, in workbook column order
// --------------------------------------------
type Category string

const (
	CategoryGreeting          Category = "greeting"
	CategoryNeedsAnalysis     Category = "needs_analysis"
	CategoryPresentation      Category = "presentation"
	CategoryClosing           Category = "closing"
	CategorySummary           Category = "summary"
	CategoryObjectionHandling Category = "objection_handling"
	CategorySpeech            Category = "speech"
)

var Categories = []Category{
	CategoryGreeting,
	CategoryNeedsAnalysis,
	CategoryPresentation,
	CategoryClosing,
	CategorySummary,
	CategoryObjectionHandling,
	CategorySpeech,
}

// --------------------------------------------
// EvaluationRecord: model output for one call
// --------------------------------------------
type EvaluationRecord struct {
	ManagerName       string `json:"manager_name"`
	TranscriptionText string `json:"transcription_text"`

	GreetingScore   Score  `json:"greeting_score"`
	GreetingComment string `json:"greeting_comment"`

	NeedsAnalysisScore   Score  `json:"needs_analysis_score"`
	NeedsAnalysisComment string `json:"needs_analysis_comment"`

	PresentationScore   Score  `json:"presentation_score"`
	PresentationComment string `json:"presentation_comment"`

	ClosingScore   Score  `json:"closing_score"`
	ClosingComment string `json:"closing_comment"`

	SummaryScore   Score  `json:"summary_score"`
	SummaryComment string `json:"summary_comment"`

	ObjectionHandlingScore   Score  `json:"objection_handling_score"`
	ObjectionHandlingComment string `json:"objection_handling_comment"`

	SpeechScore   Score  `json:"speech_score"`
	SpeechComment string `json:"speech_comment"`

	TotalScore  int    `json:"total_score"`
	SummaryText string `json:"summary_text"`
}

// Score returns the score and comment recorded for c.
func (r *EvaluationRecord) Score(c Category) (Score, string) {
	switch c {
	case CategoryGreeting:
		return r.GreetingScore, r.GreetingComment
	case CategoryNeedsAnalysis:
		return r.NeedsAnalysisScore, r.NeedsAnalysisComment
	case CategoryPresentation:
		return r.PresentationScore, r.PresentationComment
	case CategoryClosing:
		return r.ClosingScore, r.ClosingComment
	case CategorySummary:
		return r.SummaryScore, r.SummaryComment
	case CategoryObjectionHandling:
		return r.ObjectionHandlingScore, r.ObjectionHandlingComment
	case CategorySpeech:
		return r.SpeechScore, r.SpeechComment
	}
	return NotApplicable, ""
}

// RecomputeTotal replaces the model's total with the sum of applicable scores.
func (r *EvaluationRecord) RecomputeTotal() int {
	total := 0
	for _, c := range Categories {
		if s, _ := r.Score(c); s.Applicable {
			total += s.Value
		}
	}
	r.TotalScore = total
	return total
}
