package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	ports "fraud-classifier-service/internal/core/ports/output"
)

// RedisConsumer reads jobs from a Redis list. A received job is moved to a
// processing list and only removed from there on Ack, so jobs left unacked
// survive a restart via Recover.
type RedisConsumer struct {
	Client       *redis.Client
	JobsQueue    string
	ResultsQueue string
	BlockTimeout time.Duration
}

var _ ports.QueueConsumer = (*RedisConsumer)(nil)

func NewRedisConsumer(client *redis.Client, jobsQueue, resultsQueue string, blockTimeout time.Duration) *RedisConsumer {
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	return &RedisConsumer{
		Client:       client,
		JobsQueue:    jobsQueue,
		ResultsQueue: resultsQueue,
		BlockTimeout: blockTimeout,
	}
}

func (c *RedisConsumer) processingQueue() string {
	return c.JobsQueue + ":processing"
}

func (c *RedisConsumer) Receive(ctx context.Context) ([]ports.QueueMessage, error) {
	payload, err := c.Client.BLMove(ctx, c.JobsQueue, c.processingQueue(), "LEFT", "RIGHT", c.BlockTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return []ports.QueueMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", c.JobsQueue, err)
	}
	return []ports.QueueMessage{{
		ID:      uuid.NewString(),
		Body:    []byte(payload),
		Receipt: payload,
	}}, nil
}

func (c *RedisConsumer) Publish(ctx context.Context, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := c.Client.RPush(ctx, c.ResultsQueue, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", c.ResultsQueue, err)
	}
	return nil
}

func (c *RedisConsumer) Ack(ctx context.Context, msg ports.QueueMessage) error {
	if err := c.Client.LRem(ctx, c.processingQueue(), 1, msg.Receipt).Err(); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// Enqueue appends a job to the jobs list.
func (c *RedisConsumer) Enqueue(ctx context.Context, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return c.Client.RPush(ctx, c.JobsQueue, data).Err()
}

// Recover moves jobs a previous run left unacked back onto the jobs list.
func (c *RedisConsumer) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := c.Client.LMove(ctx, c.processingQueue(), c.JobsQueue, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover unacked jobs: %w", err)
		}
		n++
	}
}
