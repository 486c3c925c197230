package projects

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	projects := rg.Group("/projects")
	{
		projects.POST("", h.Create)
		projects.GET("", h.List)
		projects.GET("/:title", h.GetByTitle)
	}
	rg.GET("/campaigns/:id", h.GetByID)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	project, err := h.service.CreateProject(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *Handler) List(c *gin.Context) {
	projects, err := h.service.ListProjects(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, projects)
}

func (h *Handler) GetByTitle(c *gin.Context) {
	project, err := h.service.GetProjectByTitle(c.Request.Context(), c.Param("title"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

func (h *Handler) GetByID(c *gin.Context) {
	project, err := h.service.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// WriteError maps registry errors onto HTTP responses. It is shared with the
// campaign handler.
func WriteError(c *gin.Context, logger *zap.Logger, err error) bool {
	var verr *ValidationError
	var nf *NotFoundError
	var perr *PersistenceError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.As(err, &perr):
		logger.Error("record store failure", zap.String("op", perr.Op), zap.Error(perr.Err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record store unavailable"})
	default:
		return false
	}
	return true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	if WriteError(c, h.logger, err) {
		return
	}
	h.logger.Error("unexpected registry error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
