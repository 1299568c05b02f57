package analyses

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("analysis not found")
	ErrProjectNotFound        = errors.New("project not found")
	ErrValidation             = errors.New("validation error")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrCreditDeductionFailed  = errors.New("credit deduction failed")
	ErrAnalysisCreationFailed = errors.New("analysis creation failed")
	ErrStatusUpdateFailed     = errors.New("status update failed")
)

// InsufficientCreditsError is returned when the balance is below the analysis cost.
type InsufficientCreditsError struct {
	Required int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: %d required", e.Required)
}
