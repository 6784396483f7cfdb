package core

// Report is a monthly insight together with the transactions it was built
// from, ready to hand to a renderer.
type Report struct {
	Owner    string        `json:"owner"`
	Month    Month         `json:"month"`
	Insight  InsightResult `json:"insight"`
	Expenses []Expense     `json:"expenses"`
}
