package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
	"github.com/wso2/gateway-core/pkg/validate"
)

func (s *Server) validateRoute(c *gin.Context, spec *model.RouteSpec) bool {
	ve := &gwerrors.ValidationError{}
	if err := validate.RoutePolicies(c.Request.Context(), s.store, spec); err != nil {
		if verr, ok := err.(*gwerrors.ValidationError); ok {
			ve = verr
		} else {
			ve.Add("", err.Error())
		}
	}
	if !ve.Empty() {
		validationJSON(c, ve)
		return false
	}
	return true
}

func (s *Server) createRoute(c *gin.Context) {
	var spec model.RouteSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		errJSON(c, http.StatusUnprocessableEntity, "malformed request body")
		return
	}

	if !s.validateRoute(c, &spec) {
		return
	}

	if err := s.store.InsertRoute(c.Request.Context(), &spec); err != nil {
		s.storageStatus(c, "insert route", err)
		return
	}

	s.publish(c.Request.Context())
	c.JSON(http.StatusCreated, spec)
}

func (s *Server) listRoutes(c *gin.Context) {
	routes, err := s.store.ListRoutes(c.Request.Context())
	if err != nil {
		s.storageStatus(c, "list routes", err)
		return
	}
	c.JSON(http.StatusOK, routes)
}

func (s *Server) getRoute(c *gin.Context) {
	route, err := s.store.GetRoute(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storageStatus(c, "get route", err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// updateRoute implements PUT /routes/:id. If the body's id differs from
// the path, the path wins (spec.md §6).
func (s *Server) updateRoute(c *gin.Context) {
	var spec model.RouteSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		errJSON(c, http.StatusUnprocessableEntity, "malformed request body")
		return
	}
	spec.ID = c.Param("id")

	if !s.validateRoute(c, &spec) {
		return
	}

	rows, err := s.store.UpdateRoute(c.Request.Context(), &spec)
	if err != nil {
		s.storageStatus(c, "update route", err)
		return
	}
	if rows == 0 {
		errJSON(c, http.StatusNotFound, "not found")
		return
	}

	s.publish(c.Request.Context())
	c.JSON(http.StatusOK, spec)
}

func (s *Server) deleteRoute(c *gin.Context) {
	if err := s.store.DeleteRoute(c.Request.Context(), c.Param("id")); err != nil {
		s.storageStatus(c, "delete route", err)
		return
	}
	s.publish(c.Request.Context())
	c.Status(http.StatusNoContent)
}
