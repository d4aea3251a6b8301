package store

import (
	"context"
	"errors"

	"github.com/aridsondez/sqs-lite-mem/internal/queue"
)

var (
	// ErrQueueAlreadyExists is returned when creating a queue under a name already in use.
	ErrQueueAlreadyExists = errors.New("queue already exists")
	// ErrQueueDoesNotExist is returned for operations on an unknown or empty queue name.
	ErrQueueDoesNotExist = errors.New("queue does not exist")
	// ErrInvalidQueueName is returned when a new queue name is malformed.
	ErrInvalidQueueName = errors.New("invalid queue name")
	// ErrInvalidMessageBody is returned when pushing an empty body.
	ErrInvalidMessageBody = errors.New("message body is empty")
	// ErrPushFailed is returned when the queue could not accept a valid message.
	ErrPushFailed = errors.New("push failed")
	// ErrNotSupported is returned by backends that cannot serve an operation.
	ErrNotSupported = errors.New("operation not supported")
)

// Store is the queue facade the rest of the app uses. Name resolution lives
// here; the engines behind it never see an unknown name.
type Store interface {
	// CreateQueue registers a queue and applies attributes on top of the defaults.
	CreateQueue(ctx context.Context, name string, attributes map[string]string) error
	// DeleteQueue releases the queue and forgets its name.
	DeleteQueue(ctx context.Context, name string) error
	// ListQueues returns queue names in ascending order.
	ListQueues(ctx context.Context) ([]string, error)

	// Push appends a message and returns its id.
	Push(ctx context.Context, queueName, body string) (string, error)
	// Pull returns the next available message, or nil when there is none.
	Pull(ctx context.Context, queueName string) (*queue.Message, error)
	// Delete removes the message pulled under receiptHandle; false if the handle is unknown.
	Delete(ctx context.Context, queueName, receiptHandle string) (bool, error)
	// PurgeQueue drops every message in the queue.
	PurgeQueue(ctx context.Context, queueName string) (bool, error)

	GetQueueAttributes(ctx context.Context, queueName string) (map[string]string, error)
	SetQueueAttributes(ctx context.Context, queueName string, attributes map[string]string) error
	// GetApproximateNumberOfMessages counts available (not in-flight) messages.
	GetApproximateNumberOfMessages(ctx context.Context, queueName string) (int, error)
}
