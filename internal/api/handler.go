// Package api exposes the manual curation trigger and the ranked feed over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"FeedCurator/internal/api/response"
	"FeedCurator/internal/domain"
	"FeedCurator/internal/usecase"
)

// CurationService is the use case surface the handlers need.
type CurationService interface {
	CurateNow(ctx context.Context, req usecase.Request, progress usecase.ProgressFunc) (usecase.Summary, error)
	Feed(ctx context.Context, userID string, limit int) ([]domain.ContentItem, error)
}

// Handler serves the curation endpoints.
type Handler struct {
	service CurationService
	logger  *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service CurationService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// NewRouter registers all routes on a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	{
		users := v1.Group("/users/:user_id")
		users.POST("/curate", h.Curate)
		users.GET("/feed", h.Feed)
	}
	return r
}

type curateRequest struct {
	Priority int `json:"priority" binding:"omitempty,min=1,max=3"`
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// Curate runs a curation for the user synchronously and returns the summary.
func (h *Handler) Curate(c *gin.Context) {
	userID := c.Param("user_id")

	var req curateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	summary, err := h.service.CurateNow(c.Request.Context(), usecase.Request{UserID: userID, Priority: req.Priority}, nil)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveSources) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, summary)
}

// Feed returns the user's ranked items.
func (h *Handler) Feed(c *gin.Context) {
	userID := c.Param("user_id")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(usecase.DefaultFeedLimit)))
	if err != nil || limit < 1 {
		response.BadRequest(c, "limit must be a positive integer")
		return
	}

	items, err := h.service.Feed(c.Request.Context(), userID, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "count": len(items), "items": items})
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}
