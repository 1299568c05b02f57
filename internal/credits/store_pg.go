package credits

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"plancheck-backend/internal/shared/storage/db"
)

var errInsufficient = errors.New("insufficient credits")

type pgStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewPGStore constructs a Postgres-backed credit store.
func NewPGStore(database *sql.DB) *pgStore {
	return &pgStore{DB: database, now: func() time.Time { return time.Now().UTC() }}
}

func (s *pgStore) Get(ctx context.Context, userID string) (Account, error) {
	acct := Account{UserID: userID}
	err := s.DB.QueryRowContext(ctx, `
SELECT credits, updated_at FROM user_credits WHERE user_id = $1`, userID).Scan(&acct.Credits, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return acct, nil
}

func (s *pgStore) Open(ctx context.Context, userID string, initial int) (Account, bool, error) {
	now := s.now()
	created := false
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO user_credits (user_id, credits, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO NOTHING`, userID, initial, now)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 || initial <= 0 {
			created = rows > 0
			return nil
		}
		created = true
		return insertEntry(ctx, tx, Entry{
			UserID:       userID,
			Type:         EntryGrant,
			Amount:       initial,
			BalanceAfter: initial,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return Account{}, false, err
	}
	acct, err := s.Get(ctx, userID)
	return acct, created, err
}

func (s *pgStore) Debit(ctx context.Context, userID string, amount int, ref Ref) (Account, bool, error) {
	acct := Account{UserID: userID}
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
UPDATE user_credits SET credits = credits - $2, updated_at = $3
WHERE user_id = $1 AND credits >= $2
RETURNING credits, updated_at`, userID, amount, s.now()).Scan(&acct.Credits, &acct.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errInsufficient
			}
			return err
		}
		return insertEntry(ctx, tx, Entry{
			UserID:       userID,
			Type:         ref.Type,
			Amount:       -amount,
			BalanceAfter: acct.Credits,
			AnalysisID:   ref.AnalysisID,
			CreatedAt:    acct.UpdatedAt,
		})
	})
	if errors.Is(err, errInsufficient) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, err
	}
	return acct, true, nil
}

func (s *pgStore) Credit(ctx context.Context, userID string, amount int, ref Ref) (Account, error) {
	acct := Account{UserID: userID}
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
INSERT INTO user_credits (user_id, credits, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET credits = user_credits.credits + EXCLUDED.credits, updated_at = EXCLUDED.updated_at
RETURNING credits, updated_at`, userID, amount, s.now()).Scan(&acct.Credits, &acct.UpdatedAt)
		if err != nil {
			return err
		}
		return insertEntry(ctx, tx, Entry{
			UserID:       userID,
			Type:         ref.Type,
			Amount:       amount,
			BalanceAfter: acct.Credits,
			AnalysisID:   ref.AnalysisID,
			CreatedAt:    acct.UpdatedAt,
		})
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (s *pgStore) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, entry_type, amount, balance_after, COALESCE(analysis_id, ''), created_at
FROM credit_entries
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.BalanceAfter, &e.AnalysisID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertEntry(ctx context.Context, tx *sql.Tx, e Entry) error {
	var analysisID any
	if e.AnalysisID != "" {
		analysisID = e.AnalysisID
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO credit_entries (id, user_id, entry_type, amount, balance_after, analysis_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), e.UserID, e.Type, e.Amount, e.BalanceAfter, analysisID, e.CreatedAt)
	return err
}
