package main

import (
	"encoding/json"
	"fmt"
	"os"

	"fraud-classifier-service/internal/core/domain"
	"fraud-classifier-service/internal/core/model"
	"fraud-classifier-service/internal/core/services"
)

// modelBundle is the on-disk form a training job hands to "fraudctl save".
// Predictor uses the same kind envelope the registry stores.
type modelBundle struct {
	Name         string            `json:"name"`
	Predictor    json.RawMessage   `json:"predictor"`
	Preprocessor *model.Pipeline   `json:"preprocessor"`
	Labels       map[string]string `json:"labels,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	Signature    *domain.Signature `json:"signature,omitempty"`

	CustomObjects *domain.CustomObjects `json:"custom_objects,omitempty"`
}

func readBundle(path string) (*modelBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b modelBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: decode bundle %s: %v", domain.ErrValidation, path, err)
	}
	return &b, nil
}

// saveRequest converts the bundle. Signatures default to a batchable predict.
func (b *modelBundle) saveRequest() (services.SaveRequest, error) {
	req := services.SaveRequest{
		Name:         b.Name,
		Preprocessor: b.Preprocessor,
		Labels:       b.Labels,
		Metadata:     b.Metadata,
		Signature:    domain.Signature{Method: domain.DefaultMethod, Batchable: true},
	}
	if b.Signature != nil {
		req.Signature = *b.Signature
	}
	if b.CustomObjects != nil {
		req.CustomObjects = *b.CustomObjects
	}
	if len(b.Predictor) == 0 {
		return req, domain.ErrMissingPredictor
	}
	predictor, err := model.UnmarshalPredictor(b.Predictor)
	if err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrMissingPredictor, err)
	}
	req.Predictor = predictor
	return req, nil
}
