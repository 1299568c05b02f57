package analyses

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"plancheck-backend/internal/credits"
	"plancheck-backend/internal/notify"
	"plancheck-backend/internal/shared/metrics"
	"plancheck-backend/internal/shared/telemetry"
)

// Sources of terminal transitions.
const (
	SourceWebhook  = "webhook"
	SourceReaper   = "reaper"
	SourceDispatch = "dispatch"
)

type failOutcome struct {
	// Transitioned is false when another writer already moved the analysis out of processing.
	Transitioned bool
	RefundErr    error
}

// fail moves a processing analysis to failed. Only the writer whose transition wins
// refunds the owner and stores the failure report. userID may be empty; the owner is then looked up.
func (s *Service) fail(ctx context.Context, analysisID, userID, message, source string) (failOutcome, error) {
	won, err := s.Repo.TransitionFromProcessing(ctx, analysisID, Transition{Status: StatusFailed, At: s.now()})
	if err != nil {
		return failOutcome{}, err
	}
	if !won {
		metrics.IncStaleCallback()
		telemetry.Info("analysis.transition_skipped", map[string]any{
			"analysis_id": analysisID,
			"source":      source,
		})
		return failOutcome{}, nil
	}
	metrics.IncTransition(StatusFailed, source)
	// Only this writer can refund now; a cancelled caller must not lose it.
	ctx = context.WithoutCancel(ctx)

	out := failOutcome{Transitioned: true}
	if userID == "" {
		userID, err = s.Repo.OwnerOf(ctx, analysisID)
		if err != nil {
			out.RefundErr = err
			telemetry.Error("analysis.refund_failed", map[string]any{
				"analysis_id": analysisID,
				"source":      source,
				"error":       err,
			})
		}
	}
	if userID != "" {
		out.RefundErr = s.refund(ctx, analysisID, userID, source)
	}

	s.storeReport(ctx, analysisID, failureReport(message), source)
	telemetry.Info("analysis.status", map[string]any{
		"analysis_id": analysisID,
		"status":      StatusFailed,
		"source":      source,
		"message":     message,
	})
	s.publish(ctx, notify.Event{AnalysisID: analysisID, Status: StatusFailed, Message: message, At: s.now()})
	return out, nil
}

// complete moves a processing analysis to completed and stores raw as its report.
func (s *Service) complete(ctx context.Context, analysisID string, parsed ParsedResult, source string) (bool, error) {
	score, violations := parsed.Score, parsed.ViolationsCount
	won, err := s.Repo.TransitionFromProcessing(ctx, analysisID, Transition{
		Status:     StatusCompleted,
		Score:      &score,
		Violations: &violations,
		At:         s.now(),
	})
	if err != nil {
		return false, err
	}
	if !won {
		metrics.IncStaleCallback()
		telemetry.Info("analysis.transition_skipped", map[string]any{
			"analysis_id": analysisID,
			"source":      source,
		})
		return false, nil
	}
	metrics.IncTransition(StatusCompleted, source)
	ctx = context.WithoutCancel(ctx)
	if len(parsed.Raw) > 0 {
		s.storeReport(ctx, analysisID, parsed.Raw, source)
	}
	telemetry.Info("analysis.status", map[string]any{
		"analysis_id": analysisID,
		"status":      StatusCompleted,
		"source":      source,
		"shape":       parsed.Shape.String(),
		"score":       score,
		"violations":  violations,
	})
	s.publish(ctx, notify.Event{
		AnalysisID: analysisID,
		Status:     StatusCompleted,
		Score:      &score,
		Violations: &violations,
		At:         s.now(),
	})
	return true, nil
}

func (s *Service) refund(ctx context.Context, analysisID, userID, source string) error {
	err := s.Credits.Credit(ctx, userID, s.cost(), credits.ForAnalysis(credits.EntryRefund, analysisID))
	if err != nil {
		telemetry.Error("analysis.refund_failed", map[string]any{
			"analysis_id": analysisID,
			"user_id":     userID,
			"source":      source,
			"error":       err,
		})
	}
	return err
}

// storeReport logs failures instead of returning them; the status change already happened.
func (s *Service) storeReport(ctx context.Context, analysisID string, body json.RawMessage, source string) {
	inserted, err := s.Repo.CreateReport(ctx, Report{
		ID:         uuid.NewString(),
		AnalysisID: analysisID,
		JSONReport: body,
		CreatedAt:  s.now(),
	})
	switch {
	case err != nil:
		telemetry.Error("analysis.report_failed", map[string]any{
			"analysis_id": analysisID,
			"source":      source,
			"error":       err,
		})
	case !inserted:
		telemetry.Warn("analysis.report_exists", map[string]any{
			"analysis_id": analysisID,
			"source":      source,
		})
	}
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		telemetry.Warn("analysis.publish_failed", map[string]any{
			"analysis_id": ev.AnalysisID,
			"status":      ev.Status,
			"error":       err,
		})
	}
}

func failureReport(message string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": message})
	return b
}
