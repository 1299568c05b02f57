package analyses

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory implementation of Repo.
// Project ownership is taken from Analysis.UserID at creation time.
type MemoryRepo struct {
	mu       sync.RWMutex
	items    map[string]Analysis
	reports  map[string]Report
	versions map[string]int
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		items:    make(map[string]Analysis),
		reports:  make(map[string]Report),
		versions: make(map[string]int),
	}
}

func (r *MemoryRepo) CreateWithVersion(ctx context.Context, a Analysis) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[a.ProjectID]++
	a.VersionNumber = r.versions[a.ProjectID]
	a.VersionID = uuid.NewString()
	r.items[a.ID] = a
	return a, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) GetOwned(ctx context.Context, userID, analysisID string) (Analysis, error) {
	a, err := r.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if a.UserID != userID {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) OwnerOf(ctx context.Context, analysisID string) (string, error) {
	a, err := r.GetByID(ctx, analysisID)
	if err != nil {
		return "", err
	}
	return a.UserID, nil
}

func (r *MemoryRepo) ListByProject(ctx context.Context, userID, projectID string) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Analysis
	for _, a := range r.items {
		if a.UserID == userID && a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (r *MemoryRepo) TransitionFromProcessing(ctx context.Context, analysisID string, t Transition) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[analysisID]
	if !ok || a.Status != StatusProcessing {
		return false, nil
	}
	a.Status = t.Status
	a.UpdatedAt = t.At
	if t.Status == StatusCompleted {
		a.Score = t.Score
		a.Violations = t.Violations
	}
	r.items[analysisID] = a
	return true, nil
}

func (r *MemoryRepo) ListStalled(ctx context.Context, userID string, olderThan time.Time) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Analysis
	for _, a := range r.items {
		if a.Status != StatusProcessing || !a.CreatedAt.Before(olderThan) {
			continue
		}
		if userID != "" && a.UserID != userID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, userID, analysisID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[analysisID]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	delete(r.items, analysisID)
	delete(r.reports, analysisID)
	return nil
}

func (r *MemoryRepo) CreateReport(ctx context.Context, rep Report) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[rep.AnalysisID]; !ok {
		return false, ErrNotFound
	}
	if _, exists := r.reports[rep.AnalysisID]; exists {
		return false, nil
	}
	r.reports[rep.AnalysisID] = rep
	return true, nil
}

func (r *MemoryRepo) GetReport(ctx context.Context, analysisID string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[analysisID]
	if !ok {
		return Report{}, ErrNotFound
	}
	return rep, nil
}

func (r *MemoryRepo) reportCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reports)
}
