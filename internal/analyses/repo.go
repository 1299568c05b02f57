package analyses

import (
	"context"
	"time"
)

// Repo persists analyses, their plan versions and reports.
type Repo interface {
	// CreateWithVersion inserts a new project version (max+1) and the analysis in one transaction.
	CreateWithVersion(ctx context.Context, a Analysis) (Analysis, error)
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	// GetOwned returns the analysis only when userID owns its project.
	GetOwned(ctx context.Context, userID, analysisID string) (Analysis, error)
	OwnerOf(ctx context.Context, analysisID string) (string, error)
	ListByProject(ctx context.Context, userID, projectID string) ([]Analysis, error)
	// TransitionFromProcessing applies t only if the analysis is still processing.
	TransitionFromProcessing(ctx context.Context, analysisID string, t Transition) (bool, error)
	// ListStalled returns processing analyses created before olderThan; userID "" means all users.
	ListStalled(ctx context.Context, userID string, olderThan time.Time) ([]Analysis, error)
	Delete(ctx context.Context, userID, analysisID string) error
	// CreateReport inserts r unless the analysis already has a report.
	CreateReport(ctx context.Context, r Report) (bool, error)
	GetReport(ctx context.Context, analysisID string) (Report, error)
}
