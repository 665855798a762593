package domain

import (
	"errors"
	"fmt"
)

// ============================================================================
// Error kinds
// ============================================================================

// Every error returned by the core wraps exactly one of these kinds, so
// callers classify with errors.Is(err, domain.ErrValidation) and friends.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrStorage     = errors.New("storage error")
	ErrPrediction  = errors.New("prediction error")
	ErrUnavailable = errors.New("service unavailable")
)

// ============================================================================
// Registry Errors
// ============================================================================

var (
	ErrInvalidArtifactName = fmt.Errorf("%w: artifact name must be lowercase alphanumeric, '_', '-' or '.'", ErrValidation)
	ErrInvalidTag          = fmt.Errorf("%w: invalid artifact tag", ErrValidation)
	ErrUnsupportedBatching = fmt.Errorf("%w: unsupported batching mode", ErrValidation)
	ErrMissingPredictor    = fmt.Errorf("%w: predictor is required", ErrValidation)
	ErrMissingPreprocessor = fmt.Errorf("%w: preprocessor is required", ErrValidation)
	ErrColumnMismatch      = fmt.Errorf("%w: predictor and preprocessor disagree on feature columns", ErrValidation)

	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)
	ErrRegistryClosed   = fmt.Errorf("%w: registry is closed", ErrStorage)
)

// ============================================================================
// Inference Errors
// ============================================================================

var (
	ErrBatchTooLarge   = fmt.Errorf("%w: batch exceeds the maximum size", ErrValidation)
	ErrInvalidRecord   = fmt.Errorf("%w: invalid record", ErrValidation)
	ErrServiceNotReady = fmt.Errorf("%w: model is not loaded", ErrUnavailable)
	ErrServiceStopped  = fmt.Errorf("%w: service is stopped", ErrUnavailable)
	ErrPredictorFailed = fmt.Errorf("%w: predictor failed", ErrPrediction)
	ErrIllegalState    = errors.New("illegal service state transition")
)

// ============================================================================
// Deployment Errors
// ============================================================================

var (
	ErrInvalidDescriptor = fmt.Errorf("%w: invalid deployment descriptor", ErrValidation)
	ErrInvalidBuildSpec  = fmt.Errorf("%w: invalid build spec", ErrValidation)
	ErrDeploymentMissing = fmt.Errorf("%w: deployment", ErrNotFound)
	ErrClusterFailure    = errors.New("cluster request failed")
	ErrClusterDisabled   = fmt.Errorf("%w: cluster integration is disabled", ErrUnavailable)
)

// Kind returns the taxonomy kind err belongs to, or nil for unclassified errors.
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrStorage, ErrPrediction, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
