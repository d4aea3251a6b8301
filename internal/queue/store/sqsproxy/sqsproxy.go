// Package sqsproxy forwards store.Store calls to Amazon SQS. It holds no queue
// state of its own.
package sqsproxy

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"

	"github.com/aridsondez/sqs-lite-mem/internal/queue"
	"github.com/aridsondez/sqs-lite-mem/internal/queue/store"
)

var _ store.Store = (*Store)(nil)

// API is the subset of *sqs.Client the proxy calls.
type API interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, in *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	DeleteQueue(ctx context.Context, in *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error)
	ListQueues(ctx context.Context, in *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	PurgeQueue(ctx context.Context, in *sqs.PurgeQueueInput, optFns ...func(*sqs.Options)) (*sqs.PurgeQueueOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SetQueueAttributes(ctx context.Context, in *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error)
}

var _ API = (*sqs.Client)(nil)

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithRuleSet restricts which attribute names are forwarded.
func WithRuleSet(rs *queue.RuleSet) Option {
	return func(s *Store) { s.rules = rs }
}

type Store struct {
	api   API
	rules *queue.RuleSet
	log   zerolog.Logger
}

func New(api API, opts ...Option) *Store {
	s := &Store{
		api:   api,
		rules: queue.DefaultRuleSet(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewClient builds an SQS client from the default AWS credential chain.
// A non-empty endpoint overrides the service URL (localstack, elasticmq).
func NewClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// translate maps SQS service errors onto store sentinels.
func translate(op, name string, err error) error {
	var (
		missing *types.QueueDoesNotExist
		exists  *types.QueueNameExists
	)
	switch {
	case errors.As(err, &missing):
		return fmt.Errorf("%s: %w: %q", op, store.ErrQueueDoesNotExist, name)
	case errors.As(err, &exists):
		return fmt.Errorf("%s: %w: %s", op, store.ErrQueueAlreadyExists, name)
	default:
		return fmt.Errorf("%s %s: %w", op, name, err)
	}
}

func (s *Store) queueURL(ctx context.Context, name, op string) (string, error) {
	if name == "" {
		s.log.Error().Str("op", op).Msg("queue name is empty")
		return "", fmt.Errorf("%s: %w: %q", op, store.ErrQueueDoesNotExist, name)
	}
	out, err := s.api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		s.log.Error().Err(err).Str("queue", name).Str("op", op).Msg("failed to resolve queue url")
		return "", translate(op, name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

// forwardable drops attribute names the rule set does not know.
func (s *Store) forwardable(name string, attributes map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(attributes))
	for k, v := range attributes {
		if !s.rules.IsRecognized(k) {
			s.log.Error().Str("queue", name).Str("attribute", k).Msg("attribute not forwarded to sqs")
			return nil, fmt.Errorf("attribute %s: %w", k, store.ErrNotSupported)
		}
		out[k] = v
	}
	return out, nil
}

func (s *Store) CreateQueue(ctx context.Context, name string, attributes map[string]string) error {
	if name == "" {
		return fmt.Errorf("%w: %q", store.ErrInvalidQueueName, name)
	}
	attrs, err := s.forwardable(name, attributes)
	if err != nil {
		return err
	}
	in := &sqs.CreateQueueInput{QueueName: aws.String(name)}
	if len(attrs) > 0 {
		in.Attributes = attrs
	}
	if _, err := s.api.CreateQueue(ctx, in); err != nil {
		s.log.Error().Err(err).Str("queue", name).Msg("failed to create queue")
		return translate("create queue", name, err)
	}
	return nil
}

func (s *Store) DeleteQueue(ctx context.Context, name string) error {
	url, err := s.queueURL(ctx, name, "delete queue")
	if err != nil {
		return err
	}
	if _, err := s.api.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(url)}); err != nil {
		return translate("delete queue", name, err)
	}
	return nil
}

// ListQueues walks every page of ListQueues and returns the queue names sorted.
func (s *Store) ListQueues(ctx context.Context) ([]string, error) {
	var names []string
	p := sqs.NewListQueuesPaginator(s.api, &sqs.ListQueuesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list queues: %w", err)
		}
		for _, u := range page.QueueUrls {
			names = append(names, path.Base(u))
		}
	}
	slices.Sort(names)
	return names, nil
}

func (s *Store) Push(ctx context.Context, queueName, body string) (string, error) {
	if queueName != "" && body == "" {
		s.log.Error().Str("queue", queueName).Msg("message body is empty, failed to push message")
		return "", store.ErrInvalidMessageBody
	}
	url, err := s.queueURL(ctx, queueName, "push")
	if err != nil {
		return "", err
	}
	out, err := s.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		s.log.Error().Err(err).Str("queue", queueName).Msg("failed to push message")
		return "", fmt.Errorf("%w: %w", store.ErrPushFailed, translate("push", queueName, err))
	}
	return aws.ToString(out.MessageId), nil
}

func (s *Store) Pull(ctx context.Context, queueName string) (*queue.Message, error) {
	url, err := s.queueURL(ctx, queueName, "pull")
	if err != nil {
		return nil, err
	}
	out, err := s.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: 1,
	})
	if err != nil {
		return nil, translate("pull", queueName, err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	m := out.Messages[0]
	return &queue.Message{
		ID:            aws.ToString(m.MessageId),
		Body:          aws.ToString(m.Body),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
	}, nil
}

// Delete reports false, without an error, when SQS rejects the receipt handle.
func (s *Store) Delete(ctx context.Context, queueName, receiptHandle string) (bool, error) {
	url, err := s.queueURL(ctx, queueName, "delete")
	if err != nil {
		return false, err
	}
	if receiptHandle == "" {
		return false, nil
	}
	_, err = s.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	var invalid *types.ReceiptHandleIsInvalid
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &invalid):
		return false, nil
	default:
		return false, translate("delete", queueName, err)
	}
}

func (s *Store) PurgeQueue(ctx context.Context, queueName string) (bool, error) {
	url, err := s.queueURL(ctx, queueName, "purge")
	if err != nil {
		return false, err
	}
	if _, err := s.api.PurgeQueue(ctx, &sqs.PurgeQueueInput{QueueUrl: aws.String(url)}); err != nil {
		return false, translate("purge", queueName, err)
	}
	return true, nil
}

func (s *Store) GetQueueAttributes(ctx context.Context, queueName string) (map[string]string, error) {
	url, err := s.queueURL(ctx, queueName, "get attributes")
	if err != nil {
		return nil, err
	}
	out, err := s.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameVisibilityTimeout},
	})
	if err != nil {
		return nil, translate("get attributes", queueName, err)
	}
	attrs := make(map[string]string, len(out.Attributes))
	for k, v := range out.Attributes {
		if s.rules.IsRecognized(k) {
			attrs[k] = v
		}
	}
	return attrs, nil
}

func (s *Store) SetQueueAttributes(ctx context.Context, queueName string, attributes map[string]string) error {
	url, err := s.queueURL(ctx, queueName, "set attributes")
	if err != nil {
		return err
	}
	if len(attributes) == 0 {
		s.log.Warn().Str("queue", queueName).Msg("empty attribute map, nothing to set")
		return nil
	}
	attrs, err := s.forwardable(queueName, attributes)
	if err != nil {
		return err
	}
	_, err = s.api.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl:   aws.String(url),
		Attributes: attrs,
	})
	if err != nil {
		return translate("set attributes", queueName, err)
	}
	return nil
}

func (s *Store) GetApproximateNumberOfMessages(ctx context.Context, queueName string) (int, error) {
	url, err := s.queueURL(ctx, queueName, "count")
	if err != nil {
		return 0, err
	}
	name := string(types.QueueAttributeNameApproximateNumberOfMessages)
	out, err := s.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, translate("count", queueName, err)
	}
	n, err := strconv.Atoi(out.Attributes[name])
	if err != nil {
		return 0, fmt.Errorf("count %s: bad %s %q: %w", queueName, name, out.Attributes[name], err)
	}
	return n, nil
}
