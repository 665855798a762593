package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"fraud-classifier-service/internal/core/domain"
	"fraud-classifier-service/internal/core/model"
	"fraud-classifier-service/internal/metrics"
)

// ArtifactLoader is the registry handle the inference service loads from.
type ArtifactLoader interface {
	Load(ctx context.Context, name, tag string) (*domain.Artifact, error)
}

type InferenceConfig struct {
	ModelName    string
	ModelTag     string
	MaxBatchSize int
}

// InputSchema describes the fields a predict request must carry.
type InputSchema struct {
	Model       string   `json:"model"`
	Categorical []string `json:"categorical"`
	Numeric     []string `json:"numeric"`
	Columns     []string `json:"columns"`
	Batchable   bool     `json:"batchable"`
}

var allStates = []string{
	string(domain.StateUnstarted),
	string(domain.StateLoading),
	string(domain.StateReady),
	string(domain.StateShuttingDown),
	string(domain.StateStopped),
}

// InferenceService serves one artifact loaded at startup. The artifact is
// read-only once Ready and shared by all concurrent Predict calls.
type InferenceService struct {
	loader ArtifactLoader
	cfg    InferenceConfig

	mu       sync.RWMutex
	state    domain.ServiceState
	artifact *domain.Artifact
	loadErr  error
	inflight sync.WaitGroup
}

func NewInferenceService(loader ArtifactLoader, cfg InferenceConfig) *InferenceService {
	if cfg.ModelTag == "" {
		cfg.ModelTag = domain.LatestTag
	}
	s := &InferenceService{loader: loader, cfg: cfg, state: domain.StateUnstarted}
	_ = metrics.SetServiceState(string(s.state), allStates)
	return s
}

// transition must be called with mu held.
func (s *InferenceService) transition(next domain.ServiceState) error {
	if !s.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalState, s.state, next)
	}
	log.WithFields(log.Fields{"from": s.state, "to": next}).Info("inference service state change")
	s.state = next
	_ = metrics.SetServiceState(string(next), allStates)
	return nil
}

// Start loads the configured artifact. A failed load leaves the service
// Stopped with the error kept for LoadError; there is no retry.
func (s *InferenceService) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.transition(domain.StateLoading); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	artifact, err := s.load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateLoading {
		// Shutdown won the race while loading.
		return domain.ErrServiceStopped
	}
	if err != nil {
		s.loadErr = err
		_ = s.transition(domain.StateStopped)
		return err
	}
	s.artifact = artifact
	log.WithFields(log.Fields{
		"artifact":  artifact.Handle().String(),
		"batchable": artifact.Signature.Batchable,
	}).Info("artifact loaded")
	return s.transition(domain.StateReady)
}

func (s *InferenceService) load(ctx context.Context) (*domain.Artifact, error) {
	artifact, err := s.loader.Load(ctx, s.cfg.ModelName, s.cfg.ModelTag)
	if err != nil {
		return nil, fmt.Errorf("load %s:%s: %w", s.cfg.ModelName, s.cfg.ModelTag, err)
	}
	if err := artifact.Signature.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", artifact.Handle(), err)
	}
	if err := artifact.CheckColumns(); err != nil {
		return nil, fmt.Errorf("load %s: %w", artifact.Handle(), err)
	}
	return artifact, nil
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// the artifact.
func (s *InferenceService) Shutdown() {
	s.mu.Lock()
	switch s.state {
	case domain.StateReady:
		_ = s.transition(domain.StateShuttingDown)
	case domain.StateUnstarted, domain.StateLoading:
		_ = s.transition(domain.StateStopped)
		s.mu.Unlock()
		return
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.inflight.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifact = nil
	_ = s.transition(domain.StateStopped)
}

func (s *InferenceService) State() domain.ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// MaxBatchSize is the configured record limit per request; 0 means unlimited.
func (s *InferenceService) MaxBatchSize() int {
	return s.cfg.MaxBatchSize
}

func (s *InferenceService) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// acquire returns the artifact and registers an in-flight request, or the
// unavailable error for the current state.
func (s *InferenceService) acquire() (*domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case domain.StateReady:
		s.inflight.Add(1)
		return s.artifact, nil
	case domain.StateUnstarted, domain.StateLoading:
		return nil, domain.ErrServiceNotReady
	default:
		return nil, domain.ErrServiceStopped
	}
}

func (s *InferenceService) Schema() (*InputSchema, error) {
	artifact, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.inflight.Done()

	return &InputSchema{
		Model:       artifact.Handle().String(),
		Categorical: artifact.Preprocessor.Categorical(),
		Numeric:     append([]string(nil), artifact.Preprocessor.Numeric...),
		Columns:     append([]string(nil), artifact.CustomObjects.FeatureNames...),
		Batchable:   artifact.Signature.Batchable,
	}, nil
}

// Predict returns one label per record, in record order.
func (s *InferenceService) Predict(ctx context.Context, records []model.Record) ([]int, error) {
	artifact, err := s.acquire()
	if err != nil {
		_ = metrics.ObservePrediction(s.cfg.ModelName, metrics.OutcomeUnavailable, len(records), nil, 0)
		return nil, err
	}
	defer s.inflight.Done()

	start := time.Now()
	labels, err := s.predict(ctx, artifact, records)
	_ = metrics.ObservePrediction(artifact.Name, outcomeOf(err), len(records), labels, time.Since(start))
	if err != nil {
		return nil, err
	}
	return labels, nil
}

func (s *InferenceService) predict(ctx context.Context, artifact *domain.Artifact, records []model.Record) ([]int, error) {
	if len(records) == 0 {
		return []int{}, nil
	}
	if s.cfg.MaxBatchSize > 0 && len(records) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d records, limit %d", domain.ErrBatchTooLarge, len(records), s.cfg.MaxBatchSize)
	}

	x, err := artifact.Preprocessor.Assemble(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	labels, err := invoke(artifact, x)
	if err != nil {
		log.WithError(err).WithField("artifact", artifact.Handle().String()).Error("predictor failed")
		return nil, err
	}
	if len(labels) != len(records) {
		return nil, fmt.Errorf("%w: %d labels for %d records", domain.ErrPredictorFailed, len(labels), len(records))
	}
	return labels, nil
}

// invoke runs the predictor once for batchable signatures and once per row
// otherwise. Panics inside the predictor become prediction errors.
func invoke(artifact *domain.Artifact, x *mat.Dense) (labels []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			labels = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrPredictorFailed, r)
		}
	}()

	if artifact.Signature.Batchable {
		labels, err = artifact.Predictor.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPredictorFailed, err)
		}
		return labels, nil
	}

	rows, cols := x.Dims()
	labels = make([]int, 0, rows)
	for i := 0; i < rows; i++ {
		out, err := artifact.Predictor.Predict(x.Slice(i, i+1, 0, cols))
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", domain.ErrPredictorFailed, i, err)
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%w: record %d: %d labels", domain.ErrPredictorFailed, i, len(out))
		}
		labels = append(labels, out[0])
	}
	return labels, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, domain.ErrValidation):
		return metrics.OutcomeValidationError
	case errors.Is(err, domain.ErrUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomePredictionError
	}
}
