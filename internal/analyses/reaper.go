package analyses

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"plancheck-backend/internal/shared/metrics"
	"plancheck-backend/internal/shared/telemetry"
)

const (
	TimeoutMessage     = "Analysis timed out. Credits have been refunded."
	DefaultStaleAfter  = 5 * time.Minute
	defaultConcurrency = 4
)

// SweepError is a row the reaper could not fully compensate.
type SweepError struct {
	AnalysisID string `json:"analysisId"`
	Error      string `json:"error"`
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Cleaned    int          `json:"cleaned"`
	TotalFound int          `json:"totalFound"`
	Errors     []SweepError `json:"errors,omitempty"`
}

// Reaper force-fails analyses whose callback never arrived.
type Reaper struct {
	Svc         *Service
	StaleAfter  time.Duration
	Concurrency int
}

func NewReaper(svc *Service, staleAfter time.Duration, concurrency int) *Reaper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Reaper{Svc: svc, StaleAfter: staleAfter, Concurrency: concurrency}
}

// Sweep fails every stalled analysis of userID, or of all users when userID is empty.
// Rows lost to a concurrent webhook are neither cleaned nor errors.
func (r *Reaper) Sweep(ctx context.Context, userID string) (SweepResult, error) {
	cutoff := r.Svc.now().Add(-r.StaleAfter)
	stalled, err := r.Svc.Repo.ListStalled(ctx, userID, cutoff)
	if err != nil {
		return SweepResult{}, err
	}
	res := SweepResult{TotalFound: len(stalled)}
	if len(stalled) == 0 {
		return res, nil
	}

	var (
		mu      sync.Mutex
		skipped int
		g       errgroup.Group
	)
	g.SetLimit(r.Concurrency)
	for _, a := range stalled {
		a := a
		g.Go(func() error {
			out, err := r.Svc.fail(ctx, a.ID, a.UserID, TimeoutMessage, SourceReaper)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Errors = append(res.Errors, SweepError{AnalysisID: a.ID, Error: err.Error()})
			case !out.Transitioned:
				skipped++
			case out.RefundErr != nil:
				res.Errors = append(res.Errors, SweepError{AnalysisID: a.ID, Error: "refund failed: " + out.RefundErr.Error()})
			default:
				res.Cleaned++
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.AddReaperRows("cleaned", res.Cleaned)
	metrics.AddReaperRows("error", len(res.Errors))
	metrics.AddReaperRows("skipped", skipped)
	telemetry.Info("reaper.sweep", map[string]any{
		"user_id":     userID,
		"total_found": res.TotalFound,
		"cleaned":     res.Cleaned,
		"errors":      len(res.Errors),
		"skipped":     skipped,
	})
	return res, nil
}

// Run sweeps all users every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.Sweep(ctx, ""); err != nil && ctx.Err() == nil {
			telemetry.Error("reaper.sweep_failed", map[string]any{"error": err})
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
