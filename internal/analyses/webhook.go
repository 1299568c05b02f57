package analyses

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"plancheck-backend/internal/shared/telemetry"
)

const defaultFailureMessage = "Analysis failed. Credits have been refunded."

// CompletionPayload is the workflow's callback body.
type CompletionPayload struct {
	AnalysisID string          `json:"analysisId"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// CompletionOutcome reports what a callback did.
type CompletionOutcome struct {
	// Status is the status after reinterpretation of the result.
	Status string
	// Applied is false for progress pings, duplicates and late callbacks.
	Applied bool
}

// HandleCompletion applies a workflow callback. Only the status update can fail the call;
// refund and report problems are logged so the workflow does not retry into them.
func (s *Service) HandleCompletion(ctx context.Context, p CompletionPayload) (CompletionOutcome, error) {
	p.AnalysisID = strings.TrimSpace(p.AnalysisID)
	status := strings.ToLower(strings.TrimSpace(p.Status))
	if p.AnalysisID == "" || status == "" {
		return CompletionOutcome{}, fmt.Errorf("%w: analysisId and status are required", ErrValidation)
	}

	switch status {
	case StatusProcessing:
		return CompletionOutcome{Status: status}, nil
	case StatusCompleted, StatusFailed:
	default:
		return CompletionOutcome{}, fmt.Errorf("%w: unsupported status %q", ErrValidation, p.Status)
	}

	parsed := ParseResult(p.Result)
	if parsed.Shape == ShapeErrorArray {
		if status == StatusCompleted {
			telemetry.Warn("webhook.error_result", map[string]any{
				"analysis_id": p.AnalysisID,
				"message":     parsed.ErrorMessage,
			})
		}
		status = StatusFailed
	}

	if status == StatusFailed {
		msg := strings.TrimSpace(parsed.ErrorMessage)
		if msg == "" {
			msg = defaultFailureMessage
		}
		out, err := s.fail(ctx, p.AnalysisID, "", msg, SourceWebhook)
		if err != nil {
			return CompletionOutcome{}, fmt.Errorf("%w: %w", ErrStatusUpdateFailed, err)
		}
		return CompletionOutcome{Status: status, Applied: out.Transitioned}, nil
	}

	applied, err := s.complete(ctx, p.AnalysisID, parsed, SourceWebhook)
	if err != nil {
		return CompletionOutcome{}, fmt.Errorf("%w: %w", ErrStatusUpdateFailed, err)
	}
	return CompletionOutcome{Status: status, Applied: applied}, nil
}
