package analyses

import (
	"encoding/json"
	"time"
)

// Analysis statuses.
const (
	StatusWaitingForSelection = "waiting_for_selection"
	StatusProcessing          = "processing"
	StatusCompleted           = "completed"
	StatusFailed              = "failed"
)

// IsTerminal reports whether status can no longer change.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Analysis is one compliance check of one plan version.
// UserID is the owner resolved through the project; it is never serialized.
type Analysis struct {
	ID            string    `json:"id"`
	UserID        string    `json:"-"`
	ProjectID     string    `json:"projectId"`
	VersionID     string    `json:"versionId"`
	VersionNumber int       `json:"versionNumber"`
	Status        string    `json:"status"`
	PDFURL        string    `json:"pdfUrl"`
	SelectedCodes []string  `json:"selectedCodes"`
	Description   string    `json:"description,omitempty"`
	PageNumbers   string    `json:"pageNumbers,omitempty"`
	Score         *int      `json:"score,omitempty"`
	Violations    *int      `json:"violations,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Report is the stored workflow output, or {error} for a failed analysis.
type Report struct {
	ID              string          `json:"id"`
	AnalysisID      string          `json:"analysisId"`
	JSONReport      json.RawMessage `json:"jsonReport"`
	AnnotatedPDFURL string          `json:"annotatedPdfUrl,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Transition moves a processing analysis to a terminal status.
type Transition struct {
	Status     string
	Score      *int
	Violations *int
	At         time.Time
}

// Summary is the normalized outcome shown in listings.
type Summary struct {
	Score           int    `json:"score"`
	ViolationsCount int    `json:"violationsCount"`
	Shape           string `json:"shape"`
}

// Detail is an analysis with its report, as returned to the owner.
type Detail struct {
	Analysis
	Report  *Report  `json:"report,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
	Error   string   `json:"error,omitempty"`
}
