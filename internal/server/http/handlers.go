// Package httpserver exposes the replication API over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskmesh/syncserver/internal/errs"
	"github.com/taskmesh/syncserver/internal/model"
	"github.com/taskmesh/syncserver/internal/service"
)

// Server wires sync services into HTTP handlers.
type Server struct {
	labels   service.LabelService
	projects service.ProjectService
	tasks    service.TaskService
	log      *zap.Logger
}

// sinceFromQuery decodes the optional lastPulledAt cursor. Absent means a
// full sync from epoch 0; present but non-numeric is a client error.
func sinceFromQuery(c *gin.Context) (time.Time, bool) {
	raw := c.Query("lastPulledAt")
	if raw == "" {
		return time.UnixMilli(0).UTC(), true
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

type pullFunc[T any] func(ctx context.Context, caller model.Identity, since time.Time) (*model.PullResponse[T], error)

type pushFunc[T any] func(ctx context.Context, caller model.Identity, rows []model.ChangeRow[T]) ([]model.Conflict, error)

func handlePull[T any](c *gin.Context, log *zap.Logger, pull pullFunc[T]) {
	caller, ok := IdentityFromContext(c)
	if !ok {
		abortError(c, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	since, ok := sinceFromQuery(c)
	if !ok {
		abortError(c, http.StatusBadRequest, "invalid lastPulledAt")
		return
	}

	resp, err := pull(c.Request.Context(), caller, since)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func handlePush[T any](c *gin.Context, log *zap.Logger, push pushFunc[T]) {
	caller, ok := IdentityFromContext(c)
	if !ok {
		abortError(c, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	var req model.PushRequest[T]
	if err := c.ShouldBindJSON(&req); err != nil || req.ChangeRows == nil {
		abortError(c, http.StatusBadRequest, "changeRows must be an array")
		return
	}

	conflicts, err := push(c.Request.Context(), caller, req.ChangeRows)
	if err != nil {
		respondError(c, log, err)
		return
	}
	// conflicts are data, not an error: 200 uniformly across entity families
	c.JSON(http.StatusOK, conflicts)
}

// respondError maps service failures to the error envelope. Internal
// details are logged, never sent to the client.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		abortError(c, http.StatusUnauthorized, "missing or invalid authorization")
	case errors.Is(err, errs.ErrBadRequest):
		abortError(c, http.StatusBadRequest, "invalid request")
	default:
		log.Error("handler", zap.String("path", c.Request.URL.Path), zap.Error(err))
		abortError(c, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) labelsPull(c *gin.Context)   { handlePull(c, s.log, s.labels.Pull) }
func (s *Server) labelsPush(c *gin.Context)   { handlePush(c, s.log, s.labels.Push) }
func (s *Server) projectsPull(c *gin.Context) { handlePull(c, s.log, s.projects.Pull) }
func (s *Server) projectsPush(c *gin.Context) { handlePush(c, s.log, s.projects.Push) }
func (s *Server) tasksPull(c *gin.Context)    { handlePull(c, s.log, s.tasks.Pull) }
func (s *Server) tasksPush(c *gin.Context)    { handlePush(c, s.log, s.tasks.Push) }
