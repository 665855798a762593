package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ports "fraud-classifier-service/internal/core/ports/output"
	"fraud-classifier-service/internal/core/services"
)

const (
	jobsURL    = "https://sqs.eu-west-1.amazonaws.com/123456789012/fraud-jobs"
	resultsURL = "https://sqs.eu-west-1.amazonaws.com/123456789012/fraud-results"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.ReceiveMessageOutput), args.Error(1)
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.SendMessageOutput), args.Error(1)
}

func (m *mockSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.DeleteMessageOutput), args.Error(1)
}

func TestNewSQSConsumer_ClampsWait(t *testing.T) {
	assert.Equal(t, int32(20), NewSQSConsumer(nil, jobsURL, resultsURL, 0).WaitSeconds)
	assert.Equal(t, int32(20), NewSQSConsumer(nil, jobsURL, resultsURL, time.Minute).WaitSeconds)
	assert.Equal(t, int32(5), NewSQSConsumer(nil, jobsURL, resultsURL, 5*time.Second).WaitSeconds)
}

func TestSQSConsumer_Receive(t *testing.T) {
	client := new(mockSQS)
	client.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
		return aws.ToString(in.QueueUrl) == jobsURL && in.MaxNumberOfMessages == 10 && in.WaitTimeSeconds == 5
	})).Return(&sqs.ReceiveMessageOutput{Messages: []types.Message{
		{MessageId: aws.String("m-1"), Body: aws.String(`{"id":"job-1","records":[]}`), ReceiptHandle: aws.String("rh-1")},
		{MessageId: aws.String("m-2"), ReceiptHandle: aws.String("rh-2")},
	}}, nil)

	c := NewSQSConsumer(client, jobsURL, resultsURL, 5*time.Second)
	msgs, err := c.Receive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []ports.QueueMessage{
		{ID: "m-1", Body: []byte(`{"id":"job-1","records":[]}`), Receipt: "rh-1"},
		{ID: "m-2", Body: []byte{}, Receipt: "rh-2"},
	}, msgs)
	client.AssertExpectations(t)
}

func TestSQSConsumer_ReceiveError(t *testing.T) {
	client := new(mockSQS)
	client.On("ReceiveMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := NewSQSConsumer(client, jobsURL, resultsURL, time.Second).Receive(context.Background())
	assert.ErrorContains(t, err, "throttled")
}

func TestSQSConsumer_PublishAndAck(t *testing.T) {
	client := new(mockSQS)
	var sent string
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.QueueUrl) == resultsURL
	})).Run(func(args mock.Arguments) {
		sent = aws.ToString(args.Get(1).(*sqs.SendMessageInput).MessageBody)
	}).Return(&sqs.SendMessageOutput{}, nil)
	client.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		return aws.ToString(in.QueueUrl) == jobsURL && aws.ToString(in.ReceiptHandle) == "rh-1"
	})).Return(&sqs.DeleteMessageOutput{}, nil)

	c := NewSQSConsumer(client, jobsURL, resultsURL, time.Second)
	ctx := context.Background()
	require.NoError(t, c.Publish(ctx, services.BatchResult{ID: "job-1", Labels: []int{1, 0}}))
	require.NoError(t, c.Ack(ctx, ports.QueueMessage{ID: "m-1", Receipt: "rh-1"}))

	var got services.BatchResult
	require.NoError(t, json.Unmarshal([]byte(sent), &got))
	assert.Equal(t, services.BatchResult{ID: "job-1", Labels: []int{1, 0}}, got)
	client.AssertExpectations(t)
}

func TestSQSConsumer_AckError(t *testing.T) {
	client := new(mockSQS)
	client.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil, errors.New("receipt expired"))

	err := NewSQSConsumer(client, jobsURL, resultsURL, time.Second).Ack(context.Background(), ports.QueueMessage{Receipt: "rh-9"})
	assert.ErrorContains(t, err, "receipt expired")
}
