package credits

import "time"

// Journal entry types.
const (
	EntryDebit  = "debit"
	EntryRefund = "refund"
	EntryGrant  = "grant"
)

// Account is a user's spendable balance. Credits never go negative.
type Account struct {
	UserID    string    `json:"userId"`
	Credits   int       `json:"credits"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is one journal line. Amount is signed: debits are negative.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Type         string    `json:"type"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balanceAfter"`
	AnalysisID   string    `json:"analysisId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Ref tags a balance change with why it happened.
type Ref struct {
	Type       string
	AnalysisID string
}

// ForAnalysis builds a Ref for an analysis-scoped entry.
func ForAnalysis(entryType, analysisID string) Ref {
	return Ref{Type: entryType, AnalysisID: analysisID}
}
