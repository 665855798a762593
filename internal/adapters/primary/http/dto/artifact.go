package dto

import (
	"time"

	"fraud-classifier-service/internal/core/domain"
)

type ArtifactVersionResponse struct {
	Name      string `json:"name"`
	Tag       string `json:"tag"`
	CreatedAt string `json:"created_at"`
}

type ListArtifactVersionsResponse struct {
	Name  string                    `json:"name"`
	Items []ArtifactVersionResponse `json:"items"`
	Total int                       `json:"total"`
}

type ListArtifactNamesResponse struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

type SignatureDTO struct {
	Method    string `json:"method"`
	Batchable bool   `json:"batchable"`
	BatchDim  int    `json:"batch_dim"`
}

// ArtifactResponse describes a stored artifact without its weights.
type ArtifactResponse struct {
	Name          string            `json:"name"`
	Tag           string            `json:"tag"`
	CreatedAt     string            `json:"created_at"`
	Labels        map[string]string `json:"labels"`
	Metadata      map[string]any    `json:"metadata"`
	Signature     SignatureDTO      `json:"signature"`
	PredictorKind string            `json:"predictor_kind"`
	Categorical   []string          `json:"categorical"`
	Numeric       []string          `json:"numeric"`
	FeatureNames  []string          `json:"feature_names"`
}

func ToArtifactVersionResponse(h domain.ArtifactHandle) ArtifactVersionResponse {
	return ArtifactVersionResponse{
		Name:      h.Name,
		Tag:       h.Tag,
		CreatedAt: h.CreatedAt.Format(time.RFC3339Nano),
	}
}

func ToArtifactResponse(a *domain.Artifact) ArtifactResponse {
	resp := ArtifactResponse{
		Name:      a.Name,
		Tag:       a.Tag,
		CreatedAt: a.CreatedAt.Format(time.RFC3339Nano),
		Labels:    a.Labels,
		Metadata:  a.Metadata,
		Signature: SignatureDTO{
			Method:    a.Signature.Method,
			Batchable: a.Signature.Batchable,
			BatchDim:  a.Signature.BatchDim,
		},
		FeatureNames: a.CustomObjects.FeatureNames,
	}
	if a.Predictor != nil {
		resp.PredictorKind = a.Predictor.Kind()
	}
	if a.Preprocessor != nil {
		resp.Categorical = a.Preprocessor.Categorical()
		resp.Numeric = a.Preprocessor.Numeric
	}
	if resp.Labels == nil {
		resp.Labels = map[string]string{}
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	return resp
}
