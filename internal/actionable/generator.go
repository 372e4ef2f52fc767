package actionable

import (
	"fmt"

	"call-evaluator-go/internal/aggregator"
	"call-evaluator-go/internal/types"
)

// weakThreshold is the share of category points below which a coaching
// action is proposed.
const weakThreshold = 0.6

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

var coaching = map[types.Category]struct{ action, impact string }{
	types.CategoryGreeting:          {"Drill the opening script: own name, company, client's name", "Faster rapport in the first seconds of the call"},
	types.CategoryNeedsAnalysis:     {"Run a questioning workshop on open and clarifying questions with active listening", "Offers that match real client needs"},
	types.CategoryPresentation:      {"Rebuild product pitches around Features-Advantages-Benefits", "Higher perceived value of the offer"},
	types.CategoryClosing:           {"Require a concrete next action and date before every farewell", "More calls converting into follow-ups"},
	types.CategorySummary:           {"Add a mandatory recap of agreements and next steps at the end of the call", "Fewer lost agreements between calls"},
	types.CategoryObjectionHandling: {"Roleplay the objection algorithm: join, clarify, argue with FAB, call to action", "Fewer deals lost to unanswered objections"},
	types.CategorySpeech:            {"Review recordings for filler words and tone with a speech coach", "More confident and clear conversations"},
}

// Generate turns the weakest category of the insight into an action card.
func Generate(ins aggregator.Insight) ActionCard {
	if ins.Calls == 0 {
		return ActionCard{
			Insight: "No evaluated calls yet",
			Action:  "Submit call recordings for evaluation",
			Impact:  "Baseline for coaching",
		}
	}

	var worst types.Category
	lowest := 2.0
	for _, c := range types.Categories {
		v, ok := ins.Categories[c]
		if ok && v < lowest {
			lowest = v
			worst = c
		}
	}
	if worst != "" && lowest < weakThreshold {
		tip := coaching[worst]
		return ActionCard{
			Insight: fmt.Sprintf("Weakest area is %s (%.0f%% of max over %d calls)", worst, lowest*100, ins.Calls),
			Action:  tip.action,
			Impact:  tip.impact,
		}
	}
	return ActionCard{
		Insight: "No strong weakness detected",
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}
