package dto

import "fraud-classifier-service/internal/core/services"

// RouteSchema documents one registered inference route.
type RouteSchema struct {
	Method string                `json:"method"`
	Path   string                `json:"path"`
	Input  *services.InputSchema `json:"input"`
	Output string                `json:"output"`
}

type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state,omitempty"`
	Error  string `json:"error,omitempty"`
}
