package actionable

import (
	"fmt"

	"reception-agent-go/internal/aggregator"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

const highPriorityAlert = 0.35

// Generate turns call stats into one suggestion for the front desk.
func Generate(st aggregator.Stats) ActionCard {
	if st.Total == 0 {
		return ActionCard{
			Insight: "No calls recorded yet",
			Action:  "Upload and confirm calls to build a history",
			Impact:  "None",
		}
	}
	if st.HighPriorityRate >= highPriorityAlert {
		card := ActionCard{
			Insight: fmt.Sprintf("%.0f%% of calls are high priority", st.HighPriorityRate*100),
			Action:  "Review high priority calls first and schedule callbacks today",
			Impact:  "Fewer repeat calls from waiting customers",
		}
		if len(st.TopDepartments) > 0 {
			card.Action = fmt.Sprintf("Escalate the %s queue and schedule callbacks today", st.TopDepartments[0].Department)
		}
		return card
	}
	return ActionCard{
		Insight: "No strong priority pattern detected",
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}
