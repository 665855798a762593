package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"fraud-classifier-service/internal/adapters/primary/http/dto"
	"fraud-classifier-service/internal/core/domain"
)

// RenderDeployment returns the manifests for the posted descriptor as YAML.
func (h *Handler) RenderDeployment(c *gin.Context) {
	var d domain.DeploymentDescriptor
	if err := c.ShouldBindJSON(&d); err != nil {
		mapDomainError(c, fmt.Errorf("%w: request body must be a deployment descriptor: %v", domain.ErrInvalidDescriptor, err))
		return
	}

	out, err := h.deploySvc.Render(&d)
	if err != nil {
		mapDomainError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/yaml", out)
}

func (h *Handler) ApplyDeployment(c *gin.Context) {
	var d domain.DeploymentDescriptor
	if err := c.ShouldBindJSON(&d); err != nil {
		mapDomainError(c, fmt.Errorf("%w: request body must be a deployment descriptor: %v", domain.ErrInvalidDescriptor, err))
		return
	}

	result, err := h.deploySvc.Apply(c.Request.Context(), &d)
	if err != nil {
		log.WithError(err).Error("apply deployment failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.ToApplyDeploymentResponse(&d, result))
}

func (h *Handler) TeardownDeployment(c *gin.Context) {
	if err := h.deploySvc.Teardown(c.Request.Context(), c.Param("namespace"), c.Param("name")); err != nil {
		log.WithError(err).Error("teardown deployment failed")
		mapDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) GetDeploymentStatus(c *gin.Context) {
	status, err := h.deploySvc.Status(c.Request.Context(), c.Param("namespace"), c.Param("name"))
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToDeploymentStatusResponse(status))
}
