package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initForTest(t *testing.T) {
	t.Helper()
	require.NoError(t, InitMetrics(prometheus.NewRegistry()))
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, unknownLabel, sanitizeLabel("  "))
	assert.Equal(t, "fraud_classifier", sanitizeLabel(" fraud_classifier "))
	assert.Len(t, sanitizeLabel(strings.Repeat("x", 300)), maxLabelLength)
}

func TestObservePrediction(t *testing.T) {
	initForTest(t)

	before := promtest.ToFloat64(predictionsTotal.WithLabelValues("m-observe", OutcomeOK))
	require.NoError(t, ObservePrediction("m-observe", OutcomeOK, 3, []int{1, 0, 1}, 5*time.Millisecond))

	assert.Equal(t, before+1, promtest.ToFloat64(predictionsTotal.WithLabelValues("m-observe", OutcomeOK)))
	assert.Equal(t, 2.0, promtest.ToFloat64(predictedLabelsTotal.WithLabelValues("m-observe", "1")))
	assert.Equal(t, 1.0, promtest.ToFloat64(predictedLabelsTotal.WithLabelValues("m-observe", "0")))
}

func TestObservePrediction_FailureCountsOnlyOutcome(t *testing.T) {
	initForTest(t)

	require.NoError(t, ObservePrediction("m-fail", OutcomeValidationError, 2, nil, 0))

	assert.Equal(t, 1.0, promtest.ToFloat64(predictionsTotal.WithLabelValues("m-fail", OutcomeValidationError)))
	assert.Equal(t, 0.0, promtest.ToFloat64(predictedLabelsTotal.WithLabelValues("m-fail", "1")))
}

func TestSetServiceState(t *testing.T) {
	initForTest(t)

	all := []string{"UNSTARTED", "LOADING", "READY"}
	require.NoError(t, SetServiceState("LOADING", all))
	require.NoError(t, SetServiceState("READY", all))

	assert.Equal(t, 0.0, promtest.ToFloat64(serviceState.WithLabelValues("LOADING")))
	assert.Equal(t, 1.0, promtest.ToFloat64(serviceState.WithLabelValues("READY")))
}

func TestObserveBatchJob(t *testing.T) {
	initForTest(t)

	before := promtest.ToFloat64(batchJobsTotal.WithLabelValues(OutcomeUnavailable))
	require.NoError(t, ObserveBatchJob(OutcomeUnavailable))
	assert.Equal(t, before+1, promtest.ToFloat64(batchJobsTotal.WithLabelValues(OutcomeUnavailable)))
}

func TestObserveHTTPRequest(t *testing.T) {
	initForTest(t)

	require.NoError(t, ObserveHTTPRequest("POST", "/fraud-classifier", 200, time.Millisecond))
	assert.Equal(t, 1, promtest.CollectAndCount(httpRequestDuration))
}
