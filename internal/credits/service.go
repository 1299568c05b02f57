package credits

import (
	"context"
	"errors"
	"strings"

	"plancheck-backend/internal/shared/metrics"
	"plancheck-backend/internal/shared/telemetry"
)

type store interface {
	Get(ctx context.Context, userID string) (Account, error)
	Open(ctx context.Context, userID string, initial int) (Account, bool, error)
	Debit(ctx context.Context, userID string, amount int, ref Ref) (Account, bool, error)
	Credit(ctx context.Context, userID string, amount int, ref Ref) (Account, error)
	Entries(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Service is the credit ledger. It is cost-agnostic: callers pass amounts.
type Service struct {
	store store
	// SignupCredits seeds an account on its first balance read; 0 disables the grant.
	SignupCredits int
}

// NewService constructs a Service with in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// Balance returns the user's credits. ErrNotFound when the user has no account
// and no signup grant is configured.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	acct, err := s.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Credits, nil
}

// Account returns the user's account, opening it with the signup grant if configured.
func (s *Service) Account(ctx context.Context, userID string) (Account, error) {
	acct, err := s.store.Get(ctx, userID)
	if err == nil || !errors.Is(err, ErrNotFound) || s.SignupCredits <= 0 {
		return acct, err
	}
	acct, created, err := s.store.Open(ctx, userID, s.SignupCredits)
	if err != nil {
		return Account{}, err
	}
	if created {
		metrics.AddCredits(EntryGrant, s.SignupCredits)
		telemetry.Info("credits.signup_grant", map[string]any{
			"user_id": userID,
			"amount":  s.SignupCredits,
		})
	}
	return acct, nil
}

// HasEnough reports whether the balance covers amount. A missing account counts as zero.
func (s *Service) HasEnough(ctx context.Context, userID string, amount int) (bool, error) {
	credits, err := s.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return amount <= 0, nil
		}
		return false, err
	}
	return credits >= amount, nil
}

// Debit removes amount only if the balance covers it, in a single conditional write.
// It returns false, nil when the balance is insufficient or the account is missing.
func (s *Service) Debit(ctx context.Context, userID string, amount int, ref Ref) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	ref.Type = EntryDebit
	acct, ok, err := s.store.Debit(ctx, userID, amount, ref)
	if err != nil || !ok {
		return ok, err
	}
	metrics.AddCredits(EntryDebit, amount)
	telemetry.Info("credits.debit", map[string]any{
		"user_id":       userID,
		"analysis_id":   ref.AnalysisID,
		"amount":        amount,
		"balance_after": acct.Credits,
	})
	return true, nil
}

// Credit adds amount, creating the account if needed. Used for refunds and grants.
func (s *Service) Credit(ctx context.Context, userID string, amount int, ref Ref) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(ref.Type) == "" {
		ref.Type = EntryRefund
	}
	acct, err := s.store.Credit(ctx, userID, amount, ref)
	if err != nil {
		return err
	}
	metrics.AddCredits(ref.Type, amount)
	telemetry.Info("credits."+ref.Type, map[string]any{
		"user_id":       userID,
		"analysis_id":   ref.AnalysisID,
		"amount":        amount,
		"balance_after": acct.Credits,
	})
	return nil
}

// Grant adds credits outside the analysis lifecycle (admin CLI, dev route).
func (s *Service) Grant(ctx context.Context, userID string, amount int) (Account, error) {
	if err := s.Credit(ctx, userID, amount, Ref{Type: EntryGrant}); err != nil {
		return Account{}, err
	}
	return s.store.Get(ctx, userID)
}

// Entries returns the newest journal entries first.
func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.Entries(ctx, userID, limit)
}
