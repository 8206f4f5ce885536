package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wso2/gateway-core/pkg/gwerrors"
	"github.com/wso2/gateway-core/pkg/model"
	"github.com/wso2/gateway-core/pkg/validate"
)

func (s *Server) createPolicy(c *gin.Context) {
	var spec model.PolicySpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		errJSON(c, http.StatusUnprocessableEntity, "malformed request body")
		return
	}

	ve := &gwerrors.ValidationError{}
	if err := validate.PolicySpec(&spec); err != nil {
		if verr, ok := err.(*gwerrors.ValidationError); ok {
			ve = verr
		} else {
			ve.Add("", err.Error())
		}
	}
	if !ve.Empty() {
		validationJSON(c, ve)
		return
	}

	if err := s.store.InsertPolicy(c.Request.Context(), &spec); err != nil {
		s.storageStatus(c, "insert policy", err)
		return
	}

	s.publish(c.Request.Context())
	c.JSON(http.StatusCreated, spec)
}

func (s *Server) listPolicies(c *gin.Context) {
	policies, err := s.store.ListPolicies(c.Request.Context())
	if err != nil {
		s.storageStatus(c, "list policies", err)
		return
	}
	c.JSON(http.StatusOK, policies)
}

func (s *Server) getPolicy(c *gin.Context) {
	id := c.Param("id")
	version := c.Query("version")

	policies, err := s.store.GetPolicy(c.Request.Context(), id, version)
	if err != nil {
		s.storageStatus(c, "get policy", err)
		return
	}
	if len(policies) == 0 {
		errJSON(c, http.StatusNotFound, "not found")
		return
	}
	c.JSON(http.StatusOK, policies)
}
