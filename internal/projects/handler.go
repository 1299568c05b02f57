package projects

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/shared/server/middleware"
	"plancheck-backend/internal/shared/server/respond"
)

// Handler exposes project and folder endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches project routes to the router group.
// Analyses of a project are served by the analyses handler under /projects/:id/analyses.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/projects", h.listProjects)
	rg.POST("/projects", h.createProject)
	rg.GET("/projects/:id", h.getProject)
	rg.PATCH("/projects/:id", h.updateProject)
	rg.DELETE("/projects/:id", h.deleteProject)
	rg.GET("/folders", h.listFolders)
	rg.POST("/folders", h.createFolder)
}

func (h *Handler) listProjects(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	items, err := h.Svc.ListProjects(c.Request.Context(), userID, c.Query("folderId"))
	if err != nil {
		h.fail(c, err, "failed to list projects")
		return
	}
	if items == nil {
		items = []Project{}
	}
	respond.OK(c, gin.H{"projects": items})
}

func (h *Handler) createProject(c *gin.Context) {
	var in ProjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	p, err := h.Svc.CreateProject(c.Request.Context(), middleware.UserIDFromContext(c), in)
	if err != nil {
		h.fail(c, err, "failed to create project")
		return
	}
	c.Set("projectId", p.ID)
	respond.JSON(c, http.StatusCreated, p)
}

func (h *Handler) getProject(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("projectId", id)
	p, err := h.Svc.GetProject(c.Request.Context(), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.fail(c, err, "failed to fetch project")
		return
	}
	respond.OK(c, p)
}

func (h *Handler) updateProject(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("projectId", id)
	var patch ProjectPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	p, err := h.Svc.UpdateProject(c.Request.Context(), middleware.UserIDFromContext(c), id, patch)
	if err != nil {
		h.fail(c, err, "failed to update project")
		return
	}
	respond.OK(c, p)
}

func (h *Handler) deleteProject(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("projectId", id)
	if err := h.Svc.DeleteProject(c.Request.Context(), middleware.UserIDFromContext(c), id); err != nil {
		h.fail(c, err, "failed to delete project")
		return
	}
	respond.Success(c)
}

func (h *Handler) listFolders(c *gin.Context) {
	items, err := h.Svc.ListFolders(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		h.fail(c, err, "failed to list folders")
		return
	}
	if items == nil {
		items = []Folder{}
	}
	respond.OK(c, gin.H{"folders": items})
}

type createFolderRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createFolder(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	f, err := h.Svc.CreateFolder(c.Request.Context(), middleware.UserIDFromContext(c), req.Name)
	if err != nil {
		h.fail(c, err, "failed to create folder")
		return
	}
	respond.JSON(c, http.StatusCreated, f)
}

func (h *Handler) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "project not found", nil)
	case errors.Is(err, ErrValidation):
		respond.Error(c, http.StatusBadRequest, "validation_error", strings.TrimPrefix(err.Error(), ErrValidation.Error()+": "), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.ErrorWithCause(c, http.StatusRequestTimeout, "timeout", "request canceled", nil, err)
	default:
		respond.ErrorWithCause(c, http.StatusInternalServerError, "internal_error", message, nil, err)
	}
}
