package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"fraud-classifier-service/internal/core/domain"
	"fraud-classifier-service/internal/core/model"
	ports "fraud-classifier-service/internal/core/ports/output"
	"fraud-classifier-service/internal/metrics"
)

// Predictor is the part of InferenceService the batch scorer needs.
type Predictor interface {
	Predict(ctx context.Context, records []model.Record) ([]int, error)
}

// BatchJob is the queue payload: a batch of records under a caller-chosen id.
type BatchJob struct {
	ID      string         `json:"id"`
	Records []model.Record `json:"records"`
}

// BatchResult is published for every job that is not left for redelivery.
type BatchResult struct {
	ID     string `json:"id"`
	Labels []int  `json:"labels,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchScorer pulls jobs from a queue, scores them and publishes results.
type BatchScorer struct {
	queue     ports.QueueConsumer
	predictor Predictor
	semaphore chan struct{}
	wg        sync.WaitGroup
	backoff   time.Duration
}

func NewBatchScorer(queue ports.QueueConsumer, predictor Predictor, maxConcurrency int) *BatchScorer {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &BatchScorer{
		queue:     queue,
		predictor: predictor,
		semaphore: make(chan struct{}, maxConcurrency),
		backoff:   time.Second,
	}
}

// Run consumes until ctx is done, then waits for in-flight jobs.
func (w *BatchScorer) Run(ctx context.Context) {
	log.Info("batch scorer started")
	defer func() {
		w.wg.Wait()
		log.Info("batch scorer stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("receive batch jobs failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}

		for _, msg := range messages {
			select {
			case w.semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			w.wg.Add(1)
			go func(msg ports.QueueMessage) {
				defer w.wg.Done()
				defer func() { <-w.semaphore }()
				w.Handle(ctx, msg)
			}(msg)
		}
	}
}

// Handle scores one message. Jobs rejected as invalid are answered with an
// error result and acknowledged; jobs that hit an unavailable service or a
// publish failure are left on the queue for redelivery.
func (w *BatchScorer) Handle(ctx context.Context, msg ports.QueueMessage) {
	logger := log.WithField("message_id", msg.ID)

	var job BatchJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		logger.WithError(err).Warn("malformed batch job")
		w.finish(ctx, msg, BatchResult{ID: msg.ID, Error: "malformed job: " + err.Error()}, metrics.OutcomeValidationError)
		return
	}
	if job.ID == "" {
		job.ID = msg.ID
	}

	labels, err := w.predictor.Predict(ctx, job.Records)
	switch {
	case err == nil:
		w.finish(ctx, msg, BatchResult{ID: job.ID, Labels: labels}, metrics.OutcomeOK)
	case errors.Is(err, domain.ErrValidation):
		w.finish(ctx, msg, BatchResult{ID: job.ID, Error: err.Error()}, metrics.OutcomeValidationError)
	case errors.Is(err, domain.ErrUnavailable):
		logger.WithError(err).Warn("service unavailable, leaving job for redelivery")
		_ = metrics.ObserveBatchJob(metrics.OutcomeUnavailable)
	default:
		logger.WithError(err).Error("batch job failed")
		w.finish(ctx, msg, BatchResult{ID: job.ID, Error: "prediction failed"}, metrics.OutcomePredictionError)
	}
}

func (w *BatchScorer) finish(ctx context.Context, msg ports.QueueMessage, result BatchResult, outcome string) {
	logger := log.WithFields(log.Fields{"message_id": msg.ID, "job_id": result.ID})
	if err := w.queue.Publish(ctx, result); err != nil {
		logger.WithError(err).Error("publish batch result failed")
		return
	}
	if err := w.queue.Ack(ctx, msg); err != nil {
		logger.WithError(err).Warn("ack batch job failed")
	}
	_ = metrics.ObserveBatchJob(outcome)
	logger.WithField("outcome", outcome).Debug("batch job finished")
}
