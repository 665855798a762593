package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	ports "fraud-classifier-service/internal/core/ports/output"
)

// SQSAPI is the subset of *sqs.Client the consumer calls.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

var _ SQSAPI = (*sqs.Client)(nil)

// SQSConsumer reads jobs from one SQS queue and publishes results to another.
// Unacked messages reappear after the visibility timeout.
type SQSConsumer struct {
	Client      SQSAPI
	JobsURL     string
	ResultsURL  string
	WaitSeconds int32
}

var _ ports.QueueConsumer = (*SQSConsumer)(nil)

// NewSQSClient loads credentials the standard AWS way for region.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

func NewSQSConsumer(client SQSAPI, jobsURL, resultsURL string, wait time.Duration) *SQSConsumer {
	secs := int32(wait / time.Second)
	if secs <= 0 || secs > 20 {
		secs = 20
	}
	return &SQSConsumer{
		Client:      client,
		JobsURL:     jobsURL,
		ResultsURL:  resultsURL,
		WaitSeconds: secs,
	}
}

func (c *SQSConsumer) Receive(ctx context.Context) ([]ports.QueueMessage, error) {
	output, err := c.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.JobsURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.WaitSeconds,
		VisibilityTimeout:   300,
	})
	if err != nil {
		return nil, fmt.Errorf("receive from sqs: %w", err)
	}

	messages := make([]ports.QueueMessage, 0, len(output.Messages))
	for _, m := range output.Messages {
		messages = append(messages, ports.QueueMessage{
			ID:      aws.ToString(m.MessageId),
			Body:    []byte(aws.ToString(m.Body)),
			Receipt: aws.ToString(m.ReceiptHandle),
		})
	}
	return messages, nil
}

func (c *SQSConsumer) Publish(ctx context.Context, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = c.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.ResultsURL),
		MessageBody: aws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("send result to sqs: %w", err)
	}
	return nil
}

func (c *SQSConsumer) Ack(ctx context.Context, msg ports.QueueMessage) error {
	_, err := c.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.JobsURL),
		ReceiptHandle: aws.String(msg.Receipt),
	})
	if err != nil {
		return fmt.Errorf("delete sqs message: %w", err)
	}
	return nil
}
