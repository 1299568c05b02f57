package projects

import "time"

// Folder groups projects for one user.
type Folder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Project is the ownership root for plan versions and their analyses.
type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	FolderID    string    `json:"folderId,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectInput carries fields for creating a project.
type ProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	FolderID    string `json:"folderId"`
}

// ProjectPatch carries optional fields for updating a project.
// An empty FolderID pointer target moves the project out of its folder.
type ProjectPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	FolderID    *string `json:"folderId"`
}
