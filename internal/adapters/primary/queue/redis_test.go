package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraud-classifier-service/internal/core/model"
	"fraud-classifier-service/internal/core/services"
	"fraud-classifier-service/internal/testutil"
)

func newRedisConsumer(t *testing.T) (*RedisConsumer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConsumer(client, "fraud:jobs", "fraud:results", 100*time.Millisecond), mr
}

func TestRedisConsumer_ReceiveAckPublish(t *testing.T) {
	c, mr := newRedisConsumer(t)
	ctx := context.Background()

	job := services.BatchJob{ID: "job-1", Records: []model.Record{testutil.FraudExampleRecord()}}
	require.NoError(t, c.Enqueue(ctx, job))

	msgs, err := c.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got services.BatchJob
	require.NoError(t, json.Unmarshal(msgs[0].Body, &got))
	assert.Equal(t, "job-1", got.ID)

	processing, err := mr.List("fraud:jobs:processing")
	require.NoError(t, err)
	assert.Len(t, processing, 1)

	require.NoError(t, c.Publish(ctx, services.BatchResult{ID: "job-1", Labels: []int{1}}))
	require.NoError(t, c.Ack(ctx, msgs[0]))

	assert.False(t, mr.Exists("fraud:jobs:processing"))
	results, err := mr.List("fraud:results")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"id":"job-1","labels":[1]}`}, results)
}

func TestRedisConsumer_ReceiveTimesOutEmpty(t *testing.T) {
	c, _ := newRedisConsumer(t)

	msgs, err := c.Receive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRedisConsumer_RecoverRequeuesUnacked(t *testing.T) {
	c, mr := newRedisConsumer(t)
	ctx := context.Background()

	require.NoError(t, c.Enqueue(ctx, services.BatchJob{ID: "a"}))
	require.NoError(t, c.Enqueue(ctx, services.BatchJob{ID: "b"}))
	_, err := c.Receive(ctx)
	require.NoError(t, err)

	n, err := c.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	jobs, err := mr.List("fraud:jobs")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Contains(t, jobs[0], `"id":"a"`)
}

func TestRedisConsumer_DrivesBatchScorer(t *testing.T) {
	c, mr := newRedisConsumer(t)
	ctx := context.Background()

	loader := new(testutil.MockArtifactLoader)
	loader.On("Load", ctx, testutil.FraudArtifactName, "latest").Return(testutil.FraudArtifact("v1"), nil)
	svc := services.NewInferenceService(loader, services.InferenceConfig{ModelName: testutil.FraudArtifactName})
	require.NoError(t, svc.Start(ctx))

	require.NoError(t, c.Enqueue(ctx, services.BatchJob{ID: "job-7", Records: []model.Record{
		testutil.FraudExampleRecord(), testutil.FraudLowRiskRecord(),
	}}))

	msgs, err := c.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	scorer := services.NewBatchScorer(c, svc, 1)
	scorer.Handle(ctx, msgs[0])

	results, err := mr.List("fraud:results")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"id":"job-7","labels":[1,0]}`}, results)
	assert.False(t, mr.Exists("fraud:jobs:processing"))
}
