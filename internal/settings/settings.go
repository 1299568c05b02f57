package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

var ErrInvalidWorkflowURL = errors.New("workflow url must be an absolute http or https url")

// Settings holds per-user preferences. An empty WorkflowURL means the server default applies.
type Settings struct {
	UserID      string    `json:"-"`
	WorkflowURL string    `json:"workflowUrl"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Repo persists Settings.
type Repo interface {
	Get(ctx context.Context, userID string) (Settings, bool, error)
	Put(ctx context.Context, s Settings) error
}

// Service reads and writes user settings.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo, Now: time.Now}
}

// Get returns stored settings, or zero settings when none exist.
func (s *Service) Get(ctx context.Context, userID string) (Settings, error) {
	st, _, err := s.Repo.Get(ctx, userID)
	if err != nil {
		return Settings{}, err
	}
	st.UserID = userID
	return st, nil
}

// Update validates and stores the workflow URL. An empty URL clears the override.
func (s *Service) Update(ctx context.Context, userID, workflowURL string) (Settings, error) {
	workflowURL = strings.TrimSpace(workflowURL)
	if workflowURL != "" {
		if err := validateWorkflowURL(workflowURL); err != nil {
			return Settings{}, err
		}
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	st := Settings{UserID: userID, WorkflowURL: workflowURL, UpdatedAt: now().UTC()}
	if err := s.Repo.Put(ctx, st); err != nil {
		return Settings{}, err
	}
	return st, nil
}

// WorkflowURL returns the user's workflow endpoint override, or "".
func (s *Service) WorkflowURL(ctx context.Context, userID string) (string, error) {
	st, _, err := s.Repo.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return st.WorkflowURL, nil
}

func validateWorkflowURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkflowURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidWorkflowURL
	}
	return nil
}

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[string]Settings
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]Settings)}
}

func (r *MemoryRepo) Get(ctx context.Context, userID string) (Settings, bool, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.items[userID]
	return st, ok, nil
}

func (r *MemoryRepo) Put(ctx context.Context, st Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[st.UserID] = st
	return nil
}

// PGRepo stores settings in Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Get(ctx context.Context, userID string) (Settings, bool, error) {
	st := Settings{UserID: userID}
	err := r.DB.QueryRowContext(ctx, `SELECT workflow_url, updated_at FROM settings WHERE user_id = $1`, userID).
		Scan(&st.WorkflowURL, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{UserID: userID}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	return st, true, nil
}

func (r *PGRepo) Put(ctx context.Context, st Settings) error {
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO settings (user_id, workflow_url, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET workflow_url = EXCLUDED.workflow_url, updated_at = EXCLUDED.updated_at`,
		st.UserID, st.WorkflowURL, st.UpdatedAt)
	return err
}
