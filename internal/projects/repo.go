package projects

import "context"

// Repo persists folders and projects. Every read is scoped to the owning user.
type Repo interface {
	CreateFolder(ctx context.Context, f Folder) error
	GetFolder(ctx context.Context, userID, folderID string) (Folder, error)
	ListFolders(ctx context.Context, userID string) ([]Folder, error)
	CreateProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, userID, projectID string) (Project, error)
	ListProjects(ctx context.Context, userID, folderID string) ([]Project, error)
	UpdateProject(ctx context.Context, p Project) error
	DeleteProject(ctx context.Context, userID, projectID string) error
}
