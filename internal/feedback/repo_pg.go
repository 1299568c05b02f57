package feedback

import (
	"context"
	"database/sql"
)

// PGRepo stores feedback in Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, f Feedback) error {
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO feedback (id, user_id, analysis_id, rating, message, email, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		f.ID, f.UserID, f.AnalysisID, f.Rating, f.Message, f.Email, f.CreatedAt)
	return err
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Feedback, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, COALESCE(analysis_id, ''), rating, message, email, created_at
FROM feedback WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		f := Feedback{UserID: userID}
		if err := rows.Scan(&f.ID, &f.AnalysisID, &f.Rating, &f.Message, &f.Email, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
