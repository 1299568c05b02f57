package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"plancheck-backend/internal/shared/telemetry"
)

var validate = validator.New()

type projectFields struct {
	Name        string `validate:"required,max=200"`
	Description string `validate:"max=2000"`
}

type folderFields struct {
	Name string `validate:"required,max=200"`
}

// Service manages folders and projects for a user.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

// NewService constructs a Service over repo.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) CreateFolder(ctx context.Context, userID, name string) (Folder, error) {
	name = strings.TrimSpace(name)
	if err := validate.Struct(folderFields{Name: name}); err != nil {
		return Folder{}, fmt.Errorf("%w: %s", ErrValidation, fieldError(err))
	}
	f := Folder{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := s.Repo.CreateFolder(ctx, f); err != nil {
		return Folder{}, err
	}
	return f, nil
}

func (s *Service) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	return s.Repo.ListFolders(ctx, userID)
}

func (s *Service) CreateProject(ctx context.Context, userID string, in ProjectInput) (Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.FolderID = strings.TrimSpace(in.FolderID)
	if err := validate.Struct(projectFields{Name: in.Name, Description: in.Description}); err != nil {
		return Project{}, fmt.Errorf("%w: %s", ErrValidation, fieldError(err))
	}
	if err := s.checkFolder(ctx, userID, in.FolderID); err != nil {
		return Project{}, err
	}
	now := s.now()
	p := Project{
		ID:          uuid.NewString(),
		UserID:      userID,
		FolderID:    in.FolderID,
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.CreateProject(ctx, p); err != nil {
		return Project{}, err
	}
	telemetry.Info("project.created", map[string]any{
		"user_id":    userID,
		"project_id": p.ID,
	})
	return p, nil
}

// GetProject returns the project only when userID owns it.
func (s *Service) GetProject(ctx context.Context, userID, projectID string) (Project, error) {
	return s.Repo.GetProject(ctx, userID, strings.TrimSpace(projectID))
}

func (s *Service) ListProjects(ctx context.Context, userID, folderID string) ([]Project, error) {
	return s.Repo.ListProjects(ctx, userID, strings.TrimSpace(folderID))
}

func (s *Service) UpdateProject(ctx context.Context, userID, projectID string, patch ProjectPatch) (Project, error) {
	p, err := s.Repo.GetProject(ctx, userID, projectID)
	if err != nil {
		return Project{}, err
	}
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		p.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.FolderID != nil {
		folderID := strings.TrimSpace(*patch.FolderID)
		if err := s.checkFolder(ctx, userID, folderID); err != nil {
			return Project{}, err
		}
		p.FolderID = folderID
	}
	if err := validate.Struct(projectFields{Name: p.Name, Description: p.Description}); err != nil {
		return Project{}, fmt.Errorf("%w: %s", ErrValidation, fieldError(err))
	}
	p.UpdatedAt = s.now()
	if err := s.Repo.UpdateProject(ctx, p); err != nil {
		return Project{}, err
	}
	return p, nil
}

// DeleteProject removes the project; versions and analyses cascade.
func (s *Service) DeleteProject(ctx context.Context, userID, projectID string) error {
	if err := s.Repo.DeleteProject(ctx, userID, projectID); err != nil {
		return err
	}
	telemetry.Info("project.deleted", map[string]any{
		"user_id":    userID,
		"project_id": projectID,
	})
	return nil
}

func (s *Service) checkFolder(ctx context.Context, userID, folderID string) error {
	if folderID == "" {
		return nil
	}
	if _, err := s.Repo.GetFolder(ctx, userID, folderID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: folder not found", ErrValidation)
		}
		return err
	}
	return nil
}

func fieldError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
