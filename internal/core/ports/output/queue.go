package ports

import "context"

// QueueMessage is one batch-scoring job pulled from a queue.
type QueueMessage struct {
	ID      string
	Body    []byte
	Receipt string
}

// QueueConsumer is the transport behind the batch scorer.
type QueueConsumer interface {
	// Receive blocks up to the transport's poll timeout and may return no
	// messages.
	Receive(ctx context.Context) ([]QueueMessage, error)
	Publish(ctx context.Context, result any) error
	Ack(ctx context.Context, msg QueueMessage) error
}
