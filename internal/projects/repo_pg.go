package projects

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo is a Postgres implementation of Repo.
type PGRepo struct {
	DB *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PGRepo) CreateFolder(ctx context.Context, f Folder) error {
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO folders (id, user_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		f.ID, f.UserID, f.Name, f.CreatedAt)
	return err
}

func (r *PGRepo) GetFolder(ctx context.Context, userID, folderID string) (Folder, error) {
	var f Folder
	err := r.DB.QueryRowContext(ctx, `
SELECT id, user_id, name, created_at FROM folders WHERE id = $1 AND user_id = $2`, folderID, userID).
		Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Folder{}, ErrNotFound
	}
	return f, err
}

func (r *PGRepo) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, user_id, name, created_at FROM folders WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PGRepo) CreateProject(ctx context.Context, p Project) error {
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO projects (id, user_id, folder_id, name, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.UserID, nullable(p.FolderID), p.Name, p.Description, p.CreatedAt, p.UpdatedAt)
	return err
}

const projectColumns = `id, user_id, COALESCE(folder_id, ''), name, description, created_at, updated_at`

func scanProject(row rowScanner) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.UserID, &p.FolderID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PGRepo) GetProject(ctx context.Context, userID, projectID string) (Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx, `
SELECT `+projectColumns+` FROM projects WHERE id = $1 AND user_id = $2`, projectID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	return p, err
}

func (r *PGRepo) ListProjects(ctx context.Context, userID, folderID string) ([]Project, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT `+projectColumns+` FROM projects
WHERE user_id = $1 AND ($2::text = '' OR folder_id = $2::text)
ORDER BY updated_at DESC`, userID, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateProject(ctx context.Context, p Project) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE projects SET name = $3, description = $4, folder_id = $5, updated_at = $6
WHERE id = $1 AND user_id = $2`,
		p.ID, p.UserID, p.Name, p.Description, nullable(p.FolderID), p.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *PGRepo) DeleteProject(ctx context.Context, userID, projectID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
