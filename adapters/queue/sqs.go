package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"scoregate/domain/submission"
	"scoregate/ports"
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// maxVisibility is the longest visibility timeout SQS accepts.
const maxVisibility = 12 * time.Hour

// SQSOptions tunes an SQSQueue.
type SQSOptions struct {
	// VisibilityTimeout is how long a received message stays hidden before
	// it is redelivered. Zero keeps the queue's own setting.
	VisibilityTimeout time.Duration
}

// SQSQueue maps a named queue onto an SQS queue URL. Messages are received
// one at a time, so a message's visibility clock starts when a worker takes
// it. Unacked messages come back after the visibility timeout.
type SQSQueue struct {
	name       string
	url        string
	client     SQSAPI
	backoff    time.Duration
	visibility int32
}

var _ ports.Queue = (*SQSQueue)(nil)

// NewSQSQueue creates a queue backed by the SQS queue at url
func NewSQSQueue(name, url string, client SQSAPI, opts SQSOptions) *SQSQueue {
	vis := min(opts.VisibilityTimeout, maxVisibility)
	return &SQSQueue{
		name:       name,
		url:        url,
		client:     client,
		backoff:    time.Second,
		visibility: int32(vis / time.Second),
	}
}

func (q *SQSQueue) Name() string { return q.name }

func (q *SQSQueue) Enqueue(ctx context.Context, item submission.QueueItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode queue item: %w", err)
	}
	if _, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	}); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", q.name, err)
	}
	return nil
}

// Dequeue long-polls SQS for a single message.
func (q *SQSQueue) Dequeue(ctx context.Context) (ports.Delivery, error) {
	for {
		out, err := q.client.ReceiveMessage(ctx, q.receiveInput())
		if err != nil {
			if ctx.Err() != nil {
				return ports.Delivery{}, ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ports.Delivery{}, ctx.Err()
			case <-time.After(q.backoff):
			}
			continue
		}
		for _, msg := range out.Messages {
			d, err := q.delivery(msg)
			if err != nil {
				// leave it for the redrive policy
				continue
			}
			return d, nil
		}
		if ctx.Err() != nil {
			return ports.Delivery{}, ctx.Err()
		}
	}
}

func (q *SQSQueue) receiveInput() *sqs.ReceiveMessageInput {
	return &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     5,
		VisibilityTimeout:   q.visibility,
	}
}

func (q *SQSQueue) delivery(msg types.Message) (ports.Delivery, error) {
	if msg.Body == nil || msg.ReceiptHandle == nil {
		return ports.Delivery{}, fmt.Errorf("message without body or receipt handle")
	}
	var item submission.QueueItem
	if err := json.Unmarshal([]byte(*msg.Body), &item); err != nil {
		return ports.Delivery{}, fmt.Errorf("failed to decode message: %w", err)
	}
	handle := *msg.ReceiptHandle
	return ports.Delivery{Item: item, Ack: func(ctx context.Context) error {
		if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.url),
			ReceiptHandle: aws.String(handle),
		}); err != nil {
			return fmt.Errorf("failed to delete message from %s: %w", q.name, err)
		}
		return nil
	}}, nil
}
