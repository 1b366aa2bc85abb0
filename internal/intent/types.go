package intent

// Strategy is a reply strategy; it doubles as the tone of a draft.
type Strategy string

const (
	StrategyEmpathetic  Strategy = "Empathetic"
	StrategySolution    Strategy = "Solution"
	StrategyReplacement Strategy = "Replacement"
	StrategyRefund      Strategy = "Refund"
	StrategyBrand       Strategy = "Brand"
	StrategyEngineer    Strategy = "Engineer"
)

// Strategies lists every strategy in presentation order.
var Strategies = []Strategy{
	StrategyEmpathetic,
	StrategySolution,
	StrategyReplacement,
	StrategyRefund,
	StrategyBrand,
	StrategyEngineer,
}

// ParseStrategy returns the strategy named s and whether it is known.
func ParseStrategy(s string) (Strategy, bool) {
	for _, st := range Strategies {
		if string(st) == s {
			return st, true
		}
	}
	return Strategy(s), false
}

// Intents the classifier may report.
var Intents = []string{
	"Product Defect",
	"Performance Issue",
	"Shipping",
	"Returns",
	"Usage Question",
	"Brand Inquiry",
	"Tech Spec Question",
	"Other",
}

// Sentiments the classifier may report.
var Sentiments = []string{"Negative", "Neutral", "Positive"}

// Analysis is the structured classification of a customer email.
type Analysis struct {
	Intent            string   `json:"intent"`
	Language          string   `json:"language"`
	Sentiment         string   `json:"sentiment"`
	KeyIssues         []string `json:"key_issues"`
	SuggestedStrategy Strategy `json:"suggested_strategy"`

	// Degraded is set when the analysis is the fixed fallback rather than
	// a model answer.
	Degraded bool `json:"degraded,omitempty"`
}

// Fallback is the analysis used whenever classification fails.
func Fallback() Analysis {
	return Analysis{
		Intent:            "Product Defect",
		Language:          "English",
		Sentiment:         "Negative",
		KeyIssues:         []string{"simulation mode"},
		SuggestedStrategy: StrategyRefund,
		Degraded:          true,
	}
}
