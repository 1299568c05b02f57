package projects

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu       sync.RWMutex
	folders  map[string]Folder
	projects map[string]Project
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		folders:  make(map[string]Folder),
		projects: make(map[string]Project),
	}
}

func (r *MemoryRepo) CreateFolder(ctx context.Context, f Folder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.folders[f.ID] = f
	return nil
}

func (r *MemoryRepo) GetFolder(ctx context.Context, userID, folderID string) (Folder, error) {
	if err := ctx.Err(); err != nil {
		return Folder{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.folders[folderID]
	if !ok || f.UserID != userID {
		return Folder{}, ErrNotFound
	}
	return f, nil
}

func (r *MemoryRepo) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Folder
	for _, f := range r.folders {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepo) CreateProject(ctx context.Context, p Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = p
	return nil
}

func (r *MemoryRepo) GetProject(ctx context.Context, userID, projectID string) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[projectID]
	if !ok || p.UserID != userID {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) ListProjects(ctx context.Context, userID, folderID string) ([]Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Project
	for _, p := range r.projects {
		if p.UserID != userID {
			continue
		}
		if folderID != "" && p.FolderID != folderID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpdateProject(ctx context.Context, p Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.projects[p.ID]
	if !ok || existing.UserID != p.UserID {
		return ErrNotFound
	}
	r.projects[p.ID] = p
	return nil
}

func (r *MemoryRepo) DeleteProject(ctx context.Context, userID, projectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok || p.UserID != userID {
		return ErrNotFound
	}
	delete(r.projects, projectID)
	return nil
}
