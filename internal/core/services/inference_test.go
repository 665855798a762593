package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"fraud-classifier-service/internal/core/domain"
	"fraud-classifier-service/internal/core/model"
	"fraud-classifier-service/internal/testutil"
)

func readyService(t *testing.T, artifact *domain.Artifact, cfg InferenceConfig) *InferenceService {
	t.Helper()
	loader := new(testutil.MockArtifactLoader)
	loader.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(artifact, nil)
	if cfg.ModelName == "" {
		cfg.ModelName = testutil.FraudArtifactName
	}
	svc := NewInferenceService(loader, cfg)
	require.NoError(t, svc.Start(context.Background()))
	require.Equal(t, domain.StateReady, svc.State())
	return svc
}

// countingPredictor wraps a predictor and records how it was invoked.
type countingPredictor struct {
	model.Predictor
	mu    sync.Mutex
	calls []int
}

func (p *countingPredictor) Predict(x mat.Matrix) ([]int, error) {
	rows, _ := x.Dims()
	p.mu.Lock()
	p.calls = append(p.calls, rows)
	p.mu.Unlock()
	return p.Predictor.Predict(x)
}

type panickingPredictor struct{ model.Predictor }

func (panickingPredictor) Predict(mat.Matrix) ([]int, error) { panic("boom") }

func TestInferenceService_StartLoadsLatestByDefault(t *testing.T) {
	loader := new(testutil.MockArtifactLoader)
	loader.On("Load", mock.Anything, testutil.FraudArtifactName, domain.LatestTag).
		Return(testutil.FraudArtifact("v1"), nil)

	svc := NewInferenceService(loader, InferenceConfig{ModelName: testutil.FraudArtifactName})
	assert.Equal(t, domain.StateUnstarted, svc.State())

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, domain.StateReady, svc.State())
	assert.NoError(t, svc.LoadError())
	loader.AssertExpectations(t)
}

func TestInferenceService_LoadFailureStops(t *testing.T) {
	loader := new(testutil.MockArtifactLoader)
	loader.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrArtifactNotFound)

	svc := NewInferenceService(loader, InferenceConfig{ModelName: "missing"})
	err := svc.Start(context.Background())

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StateStopped, svc.State())
	assert.ErrorIs(t, svc.LoadError(), domain.ErrArtifactNotFound)

	_, err = svc.Predict(context.Background(), []model.Record{testutil.FraudExampleRecord()})
	assert.ErrorIs(t, err, domain.ErrServiceStopped)

	// No automatic retry: a second Start is an illegal transition.
	assert.ErrorIs(t, svc.Start(context.Background()), domain.ErrIllegalState)
	loader.AssertNumberOfCalls(t, "Load", 1)
}

func TestInferenceService_StartRejectsColumnDrift(t *testing.T) {
	drifted := testutil.FraudArtifact("v1")
	drifted.CustomObjects.FeatureNames[0], drifted.CustomObjects.FeatureNames[1] =
		drifted.CustomObjects.FeatureNames[1], drifted.CustomObjects.FeatureNames[0]

	loader := new(testutil.MockArtifactLoader)
	loader.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(drifted, nil)
	svc := NewInferenceService(loader, InferenceConfig{ModelName: testutil.FraudArtifactName})

	assert.ErrorIs(t, svc.Start(context.Background()), domain.ErrColumnMismatch)
	assert.Equal(t, domain.StateStopped, svc.State())
}

func TestInferenceService_PredictBeforeStartIsUnavailable(t *testing.T) {
	svc := NewInferenceService(new(testutil.MockArtifactLoader), InferenceConfig{ModelName: testutil.FraudArtifactName})

	_, err := svc.Predict(context.Background(), []model.Record{testutil.FraudExampleRecord()})
	assert.ErrorIs(t, err, domain.ErrServiceNotReady)
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	_, err = svc.Schema()
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestInferenceService_PredictExample(t *testing.T) {
	svc := readyService(t, testutil.FraudArtifact("v1"), InferenceConfig{})

	labels, err := svc.Predict(context.Background(), []model.Record{testutil.FraudExampleRecord()})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, labels)
}

func TestInferenceService_PredictEmptyBatch(t *testing.T) {
	svc := readyService(t, testutil.FraudArtifact("v1"), InferenceConfig{})

	labels, err := svc.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, labels)
	assert.Empty(t, labels)
}

func TestInferenceService_ValidationErrorKeepsServing(t *testing.T) {
	svc := readyService(t, testutil.FraudArtifact("v1"), InferenceConfig{})

	bad := testutil.FraudExampleRecord()
	delete(bad, "TransactionAmt")
	_, err := svc.Predict(context.Background(), []model.Record{testutil.FraudExampleRecord(), bad})
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.StateReady, svc.State())

	labels, err := svc.Predict(context.Background(), []model.Record{testutil.FraudExampleRecord()})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, labels)
}

func TestInferenceService_MaxBatchSize(t *testing.T) {
	svc := readyService(t, testutil.FraudArtifact("v1"), InferenceConfig{MaxBatchSize: 2})

	records := []model.Record{testutil.FraudExampleRecord(), testutil.FraudExampleRecord(), testutil.FraudExampleRecord()}
	_, err := svc.Predict(context.Background(), records)
	assert.ErrorIs(t, err, domain.ErrBatchTooLarge)
}

func TestInferenceService_BatchableInvokesOnce(t *testing.T) {
	artifact := testutil.FraudArtifact("v1")
	counting := &countingPredictor{Predictor: artifact.Predictor}
	artifact.Predictor = counting
	svc := readyService(t, artifact, InferenceConfig{})

	labels, err := svc.Predict(context.Background(), []model.Record{
		testutil.FraudExampleRecord(), testutil.FraudLowRiskRecord(), testutil.FraudExampleRecord(),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 1}, labels)
	assert.Equal(t, []int{3}, counting.calls)
}

func TestInferenceService_NonBatchableInvokesPerRecord(t *testing.T) {
	artifact := testutil.FraudArtifact("v1")
	artifact.Signature.Batchable = false
	counting := &countingPredictor{Predictor: artifact.Predictor}
	artifact.Predictor = counting
	svc := readyService(t, artifact, InferenceConfig{})

	labels, err := svc.Predict(context.Background(), []model.Record{
		testutil.FraudLowRiskRecord(), testutil.FraudExampleRecord(),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, labels)
	assert.Equal(t, []int{1, 1}, counting.calls)
}

func TestInferenceService_PredictorPanicIsPredictionError(t *testing.T) {
	artifact := testutil.FraudArtifact("v1")
	artifact.Predictor = panickingPredictor{artifact.Predictor}
	svc := readyService(t, artifact, InferenceConfig{})

	_, err := svc.Predict(context.Background(), []model.Record{testutil.FraudExampleRecord()})
	assert.ErrorIs(t, err, domain.ErrPrediction)
	assert.Equal(t, domain.StateReady, svc.State())
}

func TestInferenceService_CancelledContext(t *testing.T) {
	svc := readyService(t, testutil.FraudArtifact("v1"), InferenceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Predict(ctx, []model.Record{testutil.FraudExampleRecord()})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInferenceService_ConcurrentPredict(t *testing.T) {
	svc := readyService(t, testutil.FraudArtifact("v1"), InferenceConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records := []model.Record{testutil.FraudLowRiskRecord(), testutil.FraudExampleRecord()}
			want := []int{0, 1}
			if i%2 == 1 {
				records[0], records[1] = records[1], records[0]
				want = []int{1, 0}
			}
			labels, err := svc.Predict(context.Background(), records)
			assert.NoError(t, err)
			assert.Equal(t, want, labels)
		}(i)
	}
	wg.Wait()
}

// blockingPredictor holds Predict until release is closed.
type blockingPredictor struct {
	model.Predictor
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPredictor) Predict(x mat.Matrix) ([]int, error) {
	close(p.entered)
	<-p.release
	return p.Predictor.Predict(x)
}

func TestInferenceService_ShutdownWaitsForInFlight(t *testing.T) {
	artifact := testutil.FraudArtifact("v1")
	blocking := &blockingPredictor{
		Predictor: artifact.Predictor,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	artifact.Predictor = blocking
	svc := readyService(t, artifact, InferenceConfig{})

	result := make(chan error, 1)
	go func() {
		_, err := svc.Predict(context.Background(), []model.Record{testutil.FraudExampleRecord()})
		result <- err
	}()
	<-blocking.entered

	stopped := make(chan struct{})
	go func() {
		svc.Shutdown()
		close(stopped)
	}()

	require.Eventually(t, func() bool { return svc.State() == domain.StateShuttingDown }, time.Second, 5*time.Millisecond)
	_, err := svc.Predict(context.Background(), []model.Record{testutil.FraudExampleRecord()})
	assert.ErrorIs(t, err, domain.ErrServiceStopped)

	close(blocking.release)
	assert.NoError(t, <-result)
	<-stopped
	assert.Equal(t, domain.StateStopped, svc.State())
}

func TestInferenceService_ShutdownBeforeStart(t *testing.T) {
	svc := NewInferenceService(new(testutil.MockArtifactLoader), InferenceConfig{ModelName: testutil.FraudArtifactName})
	svc.Shutdown()
	assert.Equal(t, domain.StateStopped, svc.State())
}

func TestInferenceService_Schema(t *testing.T) {
	svc := readyService(t, testutil.FraudArtifact("v1"), InferenceConfig{})

	schema, err := svc.Schema()
	require.NoError(t, err)
	assert.Equal(t, "fraud_classifier:v1", schema.Model)
	assert.Equal(t, testutil.FraudCategorical, schema.Categorical)
	assert.Equal(t, []string{testutil.FraudNumeric}, schema.Numeric)
	assert.True(t, schema.Batchable)
}
