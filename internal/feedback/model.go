package feedback

import (
	"context"
	"errors"
	"time"
)

var (
	ErrValidation = errors.New("validation error")
	// ErrAnalysisNotFound is returned when feedback names an analysis the user cannot see.
	ErrAnalysisNotFound = errors.New("analysis not found")
)

// Feedback is one rating left by a user, optionally about a single analysis.
type Feedback struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	AnalysisID string    `json:"analysisId,omitempty"`
	Rating     int       `json:"rating"`
	Message    string    `json:"message,omitempty"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Input is the body of a feedback submission.
type Input struct {
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	Message    string `json:"message" validate:"max=5000"`
	Email      string `json:"email" validate:"omitempty,email,max=320"`
	AnalysisID string `json:"analysisId" validate:"max=64"`
}

// Repo persists feedback rows.
type Repo interface {
	Create(ctx context.Context, f Feedback) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Feedback, error)
}
