// Package api implements the control plane's admin HTTP surface (C6),
// grounded on gateway-controller/pkg/api/handlers's gin-based APIServer,
// trimmed to the routes/policies CRUD spec.md §6 actually names.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/snapshot"
	"github.com/wso2/gateway-core/pkg/storage"
	"github.com/wso2/gateway-core/pkg/validate"
)

// Server implements the admin HTTP surface over a Store, publishing a new
// snapshot after every accepted mutation.
type Server struct {
	store   storage.Store
	channel *snapshot.Channel
	log     *slog.Logger
	engine  *gin.Engine
}

// NewServer builds the gin engine and registers every route named in
// spec.md §6.
func NewServer(store storage.Store, channel *snapshot.Channel, log *slog.Logger) *Server {
	s := &Server{store: store, channel: channel, log: log, engine: gin.New()}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/health", s.health)

	s.engine.POST("/policies", s.createPolicy)
	s.engine.GET("/policies", s.listPolicies)
	s.engine.GET("/policies/:id", s.getPolicy)

	s.engine.POST("/routes", s.createRoute)
	s.engine.GET("/routes", s.listRoutes)
	s.engine.GET("/routes/:id", s.getRoute)
	s.engine.PUT("/routes/:id", s.updateRoute)
	s.engine.DELETE("/routes/:id", s.deleteRoute)

	return s
}

// Handler exposes the underlying http.Handler for the server to bind.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, "ok")
}

func errJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func validationJSON(c *gin.Context, ve *gwerrors.ValidationError) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_error", "details": ve.Details})
}

// storageStatus maps a Store error to the HTTP status and message §6/§7 ask
// for: NotFound -> 404, Conflict -> 409, everything else -> opaque 500.
func (s *Server) storageStatus(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, gwerrors.ErrNotFound):
		errJSON(c, http.StatusNotFound, "not found")
	case errors.Is(err, gwerrors.ErrConflict):
		errJSON(c, http.StatusConflict, "conflict")
	default:
		s.log.Error(op+" failed", slog.Any("error", err))
		errJSON(c, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) publish(ctx context.Context) {
	if _, err := s.channel.Publish(ctx); err != nil {
		s.log.Error("snapshot publish failed after admin mutation", slog.Any("error", err))
	}
}
