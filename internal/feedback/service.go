package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"plancheck-backend/internal/shared/telemetry"
)

const defaultListLimit = 50

var validate = validator.New()

// AnalysisCheck reports ErrAnalysisNotFound unless userID owns analysisID.
type AnalysisCheck func(ctx context.Context, userID, analysisID string) error

// Service records user feedback.
type Service struct {
	Repo Repo
	// CheckAnalysis is optional; when nil analysis ids are stored unchecked.
	CheckAnalysis AnalysisCheck
	Now           func() time.Time
}

func NewService(repo Repo, check AnalysisCheck) *Service {
	return &Service{Repo: repo, CheckAnalysis: check, Now: time.Now}
}

// Submit validates and stores feedback. fallbackEmail is used when the input has none.
func (s *Service) Submit(ctx context.Context, userID, fallbackEmail string, in Input) (Feedback, error) {
	in.Message = strings.TrimSpace(in.Message)
	in.Email = strings.TrimSpace(in.Email)
	in.AnalysisID = strings.TrimSpace(in.AnalysisID)
	if in.Email == "" {
		in.Email = strings.TrimSpace(fallbackEmail)
	}
	if err := validate.Struct(in); err != nil {
		return Feedback{}, fmt.Errorf("%w: %s", ErrValidation, fieldError(err))
	}
	if in.AnalysisID != "" && s.CheckAnalysis != nil {
		if err := s.CheckAnalysis(ctx, userID, in.AnalysisID); err != nil {
			return Feedback{}, err
		}
	}

	f := Feedback{
		ID:         uuid.NewString(),
		UserID:     userID,
		AnalysisID: in.AnalysisID,
		Rating:     in.Rating,
		Message:    in.Message,
		Email:      in.Email,
		CreatedAt:  s.now(),
	}
	if err := s.Repo.Create(ctx, f); err != nil {
		return Feedback{}, err
	}
	telemetry.Info("feedback.submitted", map[string]any{
		"feedback_id": f.ID,
		"user_id":     userID,
		"analysis_id": f.AnalysisID,
		"rating":      f.Rating,
	})
	return f, nil
}

// List returns the user's most recent feedback first.
func (s *Service) List(ctx context.Context, userID string) ([]Feedback, error) {
	return s.Repo.ListByUser(ctx, userID, defaultListLimit)
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func fieldError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch {
	case field == "rating":
		return "rating must be between 1 and 5"
	case fe.Tag() == "email":
		return "email is invalid"
	case fe.Tag() == "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
