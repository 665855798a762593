package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric and label names.
const (
	PredictionsTotal       = "fraud_predictions_total"
	PredictedLabelsTotal   = "fraud_predicted_labels_total"
	PredictionBatchSize    = "fraud_prediction_batch_size"
	PredictionDuration     = "fraud_prediction_duration_seconds"
	ServiceState           = "fraud_service_state"
	HTTPRequestDuration    = "fraud_http_request_duration_seconds"
	BatchJobsTotal         = "fraud_batch_jobs_total"
	LabelModel             = "model"
	LabelOutcome           = "outcome"
	LabelLabel             = "label"
	LabelState             = "state"
	LabelMethod            = "method"
	LabelPath              = "path"
	LabelStatus            = "status"
	maxLabelLength         = 128
	unknownLabel           = "unknown"
	OutcomeOK              = "ok"
	OutcomeValidationError = "validation_error"
	OutcomePredictionError = "prediction_error"
	OutcomeUnavailable     = "unavailable"
)

var (
	predictionsTotal     *prometheus.CounterVec
	predictedLabelsTotal *prometheus.CounterVec
	batchSize            *prometheus.HistogramVec
	predictionDuration   *prometheus.HistogramVec
	serviceState         *prometheus.GaugeVec
	httpRequestDuration  *prometheus.HistogramVec
	batchJobsTotal       *prometheus.CounterVec

	initOnce sync.Once
	initErr  error
)

func sanitizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return unknownLabel
	}
	if len(value) > maxLabelLength {
		return value[:maxLabelLength]
	}
	return value
}

// InitMetrics registers all collectors with registry. Only the first call has
// an effect; later calls return the first call's result.
func InitMetrics(registry prometheus.Registerer) error {
	initOnce.Do(func() {
		predictionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: PredictionsTotal, Help: "Predict calls by outcome"},
			[]string{LabelModel, LabelOutcome},
		)
		predictedLabelsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: PredictedLabelsTotal, Help: "Labels emitted by the classifier"},
			[]string{LabelModel, LabelLabel},
		)
		batchSize = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    PredictionBatchSize,
				Help:    "Records per predict call",
				Buckets: prometheus.ExponentialBuckets(1, 2, 11),
			},
			[]string{LabelModel},
		)
		predictionDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    PredictionDuration,
				Help:    "Time spent assembling features and running the predictor",
				Buckets: prometheus.DefBuckets,
			},
			[]string{LabelModel},
		)
		serviceState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: ServiceState, Help: "1 for the current lifecycle state of the inference service"},
			[]string{LabelState},
		)
		httpRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    HTTPRequestDuration,
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{LabelMethod, LabelPath, LabelStatus},
		)
		batchJobsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: BatchJobsTotal, Help: "Queue jobs processed by outcome"},
			[]string{LabelOutcome},
		)

		for name, c := range map[string]prometheus.Collector{
			PredictionsTotal:     predictionsTotal,
			PredictedLabelsTotal: predictedLabelsTotal,
			PredictionBatchSize:  batchSize,
			PredictionDuration:   predictionDuration,
			ServiceState:         serviceState,
			HTTPRequestDuration:  httpRequestDuration,
			BatchJobsTotal:       batchJobsTotal,
		} {
			if err := registry.Register(c); err != nil {
				initErr = fmt.Errorf("failed to register %s metric: %w", name, err)
				return
			}
		}
	})
	return initErr
}

// ObservePrediction records one predict call. labels may be nil on failure.
func ObservePrediction(model, outcome string, records int, labels []int, elapsed time.Duration) error {
	if predictionsTotal == nil {
		return fmt.Errorf("prediction metrics not initialized")
	}
	model = sanitizeLabel(model)
	predictionsTotal.WithLabelValues(model, sanitizeLabel(outcome)).Inc()
	if outcome != OutcomeOK {
		return nil
	}
	batchSize.WithLabelValues(model).Observe(float64(records))
	predictionDuration.WithLabelValues(model).Observe(elapsed.Seconds())

	var ones int
	for _, l := range labels {
		ones += l
	}
	predictedLabelsTotal.WithLabelValues(model, "1").Add(float64(ones))
	predictedLabelsTotal.WithLabelValues(model, "0").Add(float64(len(labels) - ones))
	return nil
}

// SetServiceState marks state as current and clears the others.
func SetServiceState(state string, all []string) error {
	if serviceState == nil {
		return fmt.Errorf("serviceState metric not initialized")
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		serviceState.WithLabelValues(s).Set(v)
	}
	return nil
}

func ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) error {
	if httpRequestDuration == nil {
		return fmt.Errorf("httpRequestDuration metric not initialized")
	}
	httpRequestDuration.WithLabelValues(method, sanitizeLabel(path), strconv.Itoa(status)).Observe(elapsed.Seconds())
	return nil
}

func ObserveBatchJob(outcome string) error {
	if batchJobsTotal == nil {
		return fmt.Errorf("batchJobsTotal metric not initialized")
	}
	batchJobsTotal.WithLabelValues(sanitizeLabel(outcome)).Inc()
	return nil
}
