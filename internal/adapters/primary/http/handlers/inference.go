package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"fraud-classifier-service/internal/adapters/primary/http/dto"
	"fraud-classifier-service/internal/core/domain"
	"fraud-classifier-service/internal/core/model"
)

const (
	maxRecordBytes  = 16 << 10
	maxRequestBytes = 32 << 20
)

// bodyLimit bounds a predict body by the batch limit, or by maxRequestBytes
// when batches are unlimited.
func (h *Handler) bodyLimit() int64 {
	if n := h.inferenceSvc.MaxBatchSize(); n > 0 {
		return int64(n)*maxRecordBytes + 2
	}
	return maxRequestBytes
}

// Predict accepts a JSON array of records and answers with one label per
// record.
func (h *Handler) Predict(c *gin.Context) {
	limit := h.bodyLimit()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	var records []model.Record
	if err := c.ShouldBindJSON(&records); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = c.Error(err)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("%v: request body exceeds %d bytes", domain.ErrBatchTooLarge, limit),
			})
			return
		}
		mapDomainError(c, fmt.Errorf("%w: request body must be a JSON array of records: %v", domain.ErrValidation, err))
		return
	}

	labels, err := h.inferenceSvc.Predict(c.Request.Context(), records)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, labels)
}

func (h *Handler) schemaHandler(rt Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, err := h.inferenceSvc.Schema()
		if err != nil {
			mapDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.RouteSchema{
			Method: rt.Method,
			Path:   rt.Path,
			Input:  schema,
			Output: rt.Output,
		})
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status: "ok",
		State:  string(h.inferenceSvc.State()),
	})
}

// Readyz reports 200 only while the model is loaded and serving.
func (h *Handler) Readyz(c *gin.Context) {
	state := h.inferenceSvc.State()
	if state.Serving() {
		c.JSON(http.StatusOK, dto.HealthResponse{Status: "ready", State: string(state)})
		return
	}

	resp := dto.HealthResponse{Status: "not ready", State: string(state)}
	if err := h.inferenceSvc.LoadError(); err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusServiceUnavailable, resp)
}
