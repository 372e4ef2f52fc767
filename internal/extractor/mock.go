package extractor

import "call-evaluator-go/internal/types"

// mockEvaluation is returned when USE_MOCK_LLM=true.
func mockEvaluation() *types.EvaluationRecord {
	return &types.EvaluationRecord{
		ManagerName:              "Unknown",
		TranscriptionText:        "MOCK TRANSCRIPT: Manager greets the client, asks about delivery volumes and agrees on a follow-up call.",
		GreetingScore:            types.Points(10),
		GreetingComment:          "Introduced self and company, asked for the client's name.",
		NeedsAnalysisScore:       types.Points(10),
		NeedsAnalysisComment:     "Asked about volumes but not about current supplier.",
		PresentationScore:        types.Points(10),
		PresentationComment:      "Listed features without linking them to benefits.",
		ClosingScore:             types.Points(5),
		ClosingComment:           "Farewell without a concrete deadline.",
		SummaryScore:             types.Points(10),
		SummaryComment:           "Repeated agreements and next call date.",
		ObjectionHandlingScore:   types.NotApplicable,
		ObjectionHandlingComment: "No objections raised.",
		SpeechScore:              types.Points(5),
		SpeechComment:            "Several filler words.",
		SummaryText:              "Solid greeting and summary; work on FAB presentation and time-bound closing.",
	}
}
