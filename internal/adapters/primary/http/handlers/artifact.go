package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"fraud-classifier-service/internal/adapters/primary/http/dto"
)

func (h *Handler) ListArtifacts(c *gin.Context) {
	names, err := h.registrySvc.ListNames(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list artifacts failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListArtifactNamesResponse{Items: names, Total: len(names)})
}

func (h *Handler) ListArtifactVersions(c *gin.Context) {
	name := c.Param("name")
	versions, err := h.registrySvc.ListVersions(c.Request.Context(), name)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	items := make([]dto.ArtifactVersionResponse, 0, len(versions))
	for _, v := range versions {
		items = append(items, dto.ToArtifactVersionResponse(v))
	}
	c.JSON(http.StatusOK, dto.ListArtifactVersionsResponse{Name: name, Items: items, Total: len(items)})
}

// GetArtifact resolves a concrete tag or "latest" and describes the artifact.
func (h *Handler) GetArtifact(c *gin.Context) {
	artifact, err := h.registrySvc.Load(c.Request.Context(), c.Param("name"), c.Param("tag"))
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToArtifactResponse(artifact))
}
