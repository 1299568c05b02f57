package analyses

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"plancheck-backend/internal/credits"
	"plancheck-backend/internal/notify"
	"plancheck-backend/internal/projects"
	"plancheck-backend/internal/shared/metrics"
	"plancheck-backend/internal/shared/telemetry"
	"plancheck-backend/internal/workflow"
)

const DefaultCost = 25

// ProjectLookup resolves a project only for its owner.
type ProjectLookup interface {
	GetProject(ctx context.Context, userID, projectID string) (projects.Project, error)
}

// Ledger is the part of the credit ledger the lifecycle needs.
type Ledger interface {
	HasEnough(ctx context.Context, userID string, amount int) (bool, error)
	Debit(ctx context.Context, userID string, amount int, ref credits.Ref) (bool, error)
	Credit(ctx context.Context, userID string, amount int, ref credits.Ref) error
}

// Dispatcher hands an analysis to the external workflow.
type Dispatcher interface {
	Dispatch(ctx context.Context, job workflow.Job) error
}

// Service runs the credit-gated analysis lifecycle.
type Service struct {
	Repo       Repo
	Projects   ProjectLookup
	Credits    Ledger
	Dispatcher Dispatcher
	Events     notify.Publisher
	Cost       int
	Now        func() time.Time
}

// CreateInput is the body of POST /analysis/create.
type CreateInput struct {
	ProjectID     string   `json:"projectId" validate:"required"`
	FileURL       string   `json:"fileUrl" validate:"required"`
	SelectedCodes []string `json:"selectedCodes" validate:"required,min=1,dive,required"`
	Description   string   `json:"description"`
	PageNumbers   string   `json:"pageNumbers"`
}

// CreateResult is returned once the workflow accepted the job.
type CreateResult struct {
	AnalysisID      string `json:"analysisId"`
	CreditsDeducted int    `json:"creditsDeducted"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Service) cost() int {
	if s.Cost <= 0 {
		return DefaultCost
	}
	return s.Cost
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Create debits the analysis cost, records a processing analysis on a new plan version
// and dispatches it. Any failure after the debit refunds the user before returning.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (CreateResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CreateResult{}, ErrUnauthorized
	}
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.FileURL = strings.TrimSpace(in.FileURL)
	in.Description = strings.TrimSpace(in.Description)
	in.PageNumbers = strings.TrimSpace(in.PageNumbers)
	if err := validate.Struct(in); err != nil {
		return CreateResult{}, fmt.Errorf("%w: %s", ErrValidation, fieldError(err))
	}

	if _, err := s.Projects.GetProject(ctx, userID, in.ProjectID); err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			return CreateResult{}, ErrProjectNotFound
		}
		return CreateResult{}, fmt.Errorf("lookup project: %w", err)
	}

	cost := s.cost()
	enough, err := s.Credits.HasEnough(ctx, userID, cost)
	if err != nil {
		return CreateResult{}, fmt.Errorf("check credits: %w", err)
	}
	if !enough {
		return CreateResult{}, &InsufficientCreditsError{Required: cost}
	}

	analysisID := uuid.NewString()
	ok, err := s.Credits.Debit(ctx, userID, cost, credits.ForAnalysis(credits.EntryDebit, analysisID))
	if err != nil {
		return CreateResult{}, fmt.Errorf("%w: %w", ErrCreditDeductionFailed, err)
	}
	if !ok {
		return CreateResult{}, ErrCreditDeductionFailed
	}

	now := s.now()
	a, err := s.Repo.CreateWithVersion(ctx, Analysis{
		ID:            analysisID,
		UserID:        userID,
		ProjectID:     in.ProjectID,
		Status:        StatusProcessing,
		PDFURL:        in.FileURL,
		SelectedCodes: in.SelectedCodes,
		Description:   in.Description,
		PageNumbers:   in.PageNumbers,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		s.refund(context.WithoutCancel(ctx), analysisID, userID, "create")
		return CreateResult{}, fmt.Errorf("%w: %w", ErrAnalysisCreationFailed, err)
	}
	metrics.IncAnalysisCreated()
	telemetry.Info("analysis.created", map[string]any{
		"analysis_id":    a.ID,
		"user_id":        userID,
		"project_id":     a.ProjectID,
		"version_number": a.VersionNumber,
	})
	s.publish(ctx, notify.Event{AnalysisID: a.ID, Status: StatusProcessing, At: now})

	err = s.Dispatcher.Dispatch(ctx, workflow.Job{
		AnalysisID:    a.ID,
		UserID:        userID,
		PDFURL:        a.PDFURL,
		SelectedCodes: a.SelectedCodes,
		Description:   a.Description,
		PageNumbers:   a.PageNumbers,
	})
	if err != nil {
		if _, failErr := s.fail(context.WithoutCancel(ctx), a.ID, userID, "Workflow dispatch failed. Credits have been refunded.", SourceDispatch); failErr != nil {
			telemetry.Error("analysis.dispatch_compensation_failed", map[string]any{
				"analysis_id": a.ID,
				"user_id":     userID,
				"error":       failErr,
			})
		}
		return CreateResult{}, fmt.Errorf("%w: %w", ErrAnalysisCreationFailed, err)
	}

	return CreateResult{AnalysisID: a.ID, CreditsDeducted: cost}, nil
}

// Get returns an owned analysis with its report and normalized summary.
func (s *Service) Get(ctx context.Context, userID, analysisID string) (Detail, error) {
	a, err := s.Repo.GetOwned(ctx, userID, strings.TrimSpace(analysisID))
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Analysis: a}
	if !IsTerminal(a.Status) {
		return d, nil
	}
	rep, err := s.Repo.GetReport(ctx, a.ID)
	if errors.Is(err, ErrNotFound) {
		return d, nil
	}
	if err != nil {
		return Detail{}, err
	}
	d.Report = &rep
	parsed := ParseResult(rep.JSONReport)
	switch a.Status {
	case StatusCompleted:
		sum := parsed.Summary()
		d.Summary = &sum
	case StatusFailed:
		d.Error = parsed.ErrorMessage
	}
	return d, nil
}

// ListByProject returns the project's analyses, newest version first.
func (s *Service) ListByProject(ctx context.Context, userID, projectID string) ([]Analysis, error) {
	if _, err := s.Projects.GetProject(ctx, userID, projectID); err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return s.Repo.ListByProject(ctx, userID, projectID)
}

// Delete removes an owned analysis and its report. Credits are not refunded.
func (s *Service) Delete(ctx context.Context, userID, analysisID string) error {
	if err := s.Repo.Delete(ctx, userID, strings.TrimSpace(analysisID)); err != nil {
		return err
	}
	telemetry.Info("analysis.deleted", map[string]any{
		"analysis_id": analysisID,
		"user_id":     userID,
	})
	return nil
}

func fieldError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	name := fe.Field()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return name + " must not be empty"
	default:
		return name + " is invalid"
	}
}
