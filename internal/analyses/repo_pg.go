package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"plancheck-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const analysisColumns = `
a.id, p.user_id, p.id, v.id, v.version_number, a.status, a.pdf_url, a.selected_codes,
a.description, a.page_numbers, a.score, a.violations, a.created_at, a.updated_at`

const analysisFrom = `
FROM analyses a
JOIN project_versions v ON v.id = a.version_id
JOIN projects p ON p.id = v.project_id`

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var codes []byte
	var score, violations sql.NullInt64
	if err := row.Scan(
		&a.ID, &a.UserID, &a.ProjectID, &a.VersionID, &a.VersionNumber, &a.Status, &a.PDFURL, &codes,
		&a.Description, &a.PageNumbers, &score, &violations, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return Analysis{}, err
	}
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &a.SelectedCodes); err != nil {
			return Analysis{}, err
		}
	}
	a.Score = intPtr(score)
	a.Violations = intPtr(violations)
	return a, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// CreateWithVersion locks the project row so concurrent creations number versions without gaps or clashes.
func (r *PGRepo) CreateWithVersion(ctx context.Context, a Analysis) (Analysis, error) {
	codes, err := json.Marshal(a.SelectedCodes)
	if err != nil {
		return Analysis{}, err
	}
	err = db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var projectID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM projects WHERE id = $1 AND user_id = $2 FOR UPDATE`, a.ProjectID, a.UserID).
			Scan(&projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProjectNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version_number), 0) + 1 FROM project_versions WHERE project_id = $1`, a.ProjectID).
			Scan(&a.VersionNumber); err != nil {
			return err
		}
		a.VersionID = uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
INSERT INTO project_versions (id, project_id, version_number, created_at) VALUES ($1, $2, $3, $4)`,
			a.VersionID, a.ProjectID, a.VersionNumber, a.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO analyses (id, version_id, status, pdf_url, selected_codes, description, page_numbers, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			a.ID, a.VersionID, a.Status, a.PDFURL, codes, a.Description, a.PageNumbers, a.CreatedAt, a.UpdatedAt); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE projects SET updated_at = $2 WHERE id = $1`, a.ProjectID, a.CreatedAt)
		return err
	})
	if err != nil {
		return Analysis{}, err
	}
	return a, nil
}

func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx, `SELECT `+analysisColumns+analysisFrom+`
WHERE a.id = $1`, analysisID))
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

func (r *PGRepo) GetOwned(ctx context.Context, userID, analysisID string) (Analysis, error) {
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx, `SELECT `+analysisColumns+analysisFrom+`
WHERE a.id = $1 AND p.user_id = $2`, analysisID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

func (r *PGRepo) OwnerOf(ctx context.Context, analysisID string) (string, error) {
	var userID string
	err := r.DB.QueryRowContext(ctx, `SELECT p.user_id`+analysisFrom+` WHERE a.id = $1`, analysisID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return userID, err
}

func (r *PGRepo) ListByProject(ctx context.Context, userID, projectID string) ([]Analysis, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+analysisColumns+analysisFrom+`
WHERE p.id = $1 AND p.user_id = $2
ORDER BY v.version_number DESC`, projectID, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PGRepo) TransitionFromProcessing(ctx context.Context, analysisID string, t Transition) (bool, error) {
	var score, violations any
	if t.Status == StatusCompleted {
		if t.Score != nil {
			score = *t.Score
		}
		if t.Violations != nil {
			violations = *t.Violations
		}
	}
	res, err := r.DB.ExecContext(ctx, `
UPDATE analyses SET status = $2, score = $3, violations = $4, updated_at = $5
WHERE id = $1 AND status = 'processing'`,
		analysisID, t.Status, score, violations, t.At)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PGRepo) ListStalled(ctx context.Context, userID string, olderThan time.Time) ([]Analysis, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+analysisColumns+analysisFrom+`
WHERE a.status = 'processing' AND a.created_at < $1 AND ($2::text = '' OR p.user_id = $2::text)
ORDER BY a.created_at`, olderThan, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PGRepo) Delete(ctx context.Context, userID, analysisID string) error {
	res, err := r.DB.ExecContext(ctx, `
DELETE FROM analyses a
USING project_versions v, projects p
WHERE a.id = $1 AND v.id = a.version_id AND p.id = v.project_id AND p.user_id = $2`,
		analysisID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) CreateReport(ctx context.Context, rep Report) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
INSERT INTO reports (id, analysis_id, json_report, annotated_pdf_url, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (analysis_id) DO NOTHING`,
		rep.ID, rep.AnalysisID, []byte(rep.JSONReport), rep.AnnotatedPDFURL, rep.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PGRepo) GetReport(ctx context.Context, analysisID string) (Report, error) {
	var rep Report
	var body []byte
	err := r.DB.QueryRowContext(ctx, `
SELECT id, analysis_id, json_report, annotated_pdf_url, created_at FROM reports WHERE analysis_id = $1`, analysisID).
		Scan(&rep.ID, &rep.AnalysisID, &body, &rep.AnnotatedPDFURL, &rep.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	rep.JSONReport = json.RawMessage(body)
	return rep, nil
}

func collect(rows *sql.Rows) ([]Analysis, error) {
	defer rows.Close()
	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
