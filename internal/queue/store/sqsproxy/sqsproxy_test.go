package sqsproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aridsondez/sqs-lite-mem/internal/queue"
	"github.com/aridsondez/sqs-lite-mem/internal/queue/store"
)

const ordersURL = "https://sqs.us-east-1.amazonaws.com/000000000000/orders"

// MockAPI is a mock implementation of API.
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.GetQueueUrlOutput)
	return out, args.Error(1)
}

func (m *MockAPI) CreateQueue(ctx context.Context, in *sqs.CreateQueueInput, _ ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.CreateQueueOutput)
	return out, args.Error(1)
}

func (m *MockAPI) DeleteQueue(ctx context.Context, in *sqs.DeleteQueueInput, _ ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.DeleteQueueOutput)
	return out, args.Error(1)
}

func (m *MockAPI) ListQueues(ctx context.Context, in *sqs.ListQueuesInput, _ ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.ListQueuesOutput)
	return out, args.Error(1)
}

func (m *MockAPI) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func (m *MockAPI) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.ReceiveMessageOutput)
	return out, args.Error(1)
}

func (m *MockAPI) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.DeleteMessageOutput)
	return out, args.Error(1)
}

func (m *MockAPI) PurgeQueue(ctx context.Context, in *sqs.PurgeQueueInput, _ ...func(*sqs.Options)) (*sqs.PurgeQueueOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.PurgeQueueOutput)
	return out, args.Error(1)
}

func (m *MockAPI) GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.GetQueueAttributesOutput)
	return out, args.Error(1)
}

func (m *MockAPI) SetQueueAttributes(ctx context.Context, in *sqs.SetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.SetQueueAttributesOutput)
	return out, args.Error(1)
}

func named(name string) any {
	return mock.MatchedBy(func(in *sqs.GetQueueUrlInput) bool {
		return aws.ToString(in.QueueName) == name
	})
}

func expectOrdersURL(api *MockAPI) {
	api.On("GetQueueUrl", mock.Anything, named("orders")).
		Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String(ordersURL)}, nil)
}

func TestEmptyNamesFailFastWithoutRemoteCall(t *testing.T) {
	api := new(MockAPI)
	s := New(api)
	ctx := context.Background()

	_, err := s.Push(ctx, "", "body")
	assert.ErrorIs(t, err, store.ErrQueueDoesNotExist)

	_, err = s.Pull(ctx, "")
	assert.ErrorIs(t, err, store.ErrQueueDoesNotExist)

	ok, err := s.Delete(ctx, "", "handle")
	assert.ErrorIs(t, err, store.ErrQueueDoesNotExist)
	assert.False(t, ok)

	err = s.CreateQueue(ctx, "", nil)
	assert.ErrorIs(t, err, store.ErrInvalidQueueName)

	api.AssertNotCalled(t, "GetQueueUrl", mock.Anything, mock.Anything)
	api.AssertNotCalled(t, "CreateQueue", mock.Anything, mock.Anything)
}

func TestPushSendsMessage(t *testing.T) {
	api := new(MockAPI)
	expectOrdersURL(api)
	api.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.QueueUrl) == ordersURL && aws.ToString(in.MessageBody) == "hello"
	})).Return(&sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil)

	id, err := New(api).Push(context.Background(), "orders", "hello")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	api.AssertExpectations(t)
}

func TestPushEmptyBodySkipsSend(t *testing.T) {
	api := new(MockAPI)

	_, err := New(api).Push(context.Background(), "orders", "")
	assert.ErrorIs(t, err, store.ErrInvalidMessageBody)
	api.AssertNotCalled(t, "GetQueueUrl", mock.Anything, mock.Anything)
	api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestPushUnknownQueue(t *testing.T) {
	api := new(MockAPI)
	api.On("GetQueueUrl", mock.Anything, named("ghost")).
		Return(nil, &types.QueueDoesNotExist{Message: aws.String("nope")})

	_, err := New(api).Push(context.Background(), "ghost", "hello")
	assert.ErrorIs(t, err, store.ErrQueueDoesNotExist)
}

func TestPushSendFailure(t *testing.T) {
	api := new(MockAPI)
	expectOrdersURL(api)
	api.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := New(api).Push(context.Background(), "orders", "hello")
	assert.ErrorIs(t, err, store.ErrPushFailed)
}

func TestPullReceivesOne(t *testing.T) {
	api := new(MockAPI)
	expectOrdersURL(api)
	api.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
		return in.MaxNumberOfMessages == 1
	})).Return(&sqs.ReceiveMessageOutput{Messages: []types.Message{{
		MessageId:     aws.String("msg-1"),
		Body:          aws.String("hello"),
		ReceiptHandle: aws.String("rh-1"),
	}}}, nil).Once()
	api.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{}, nil).Once()

	s := New(api)
	msg, err := s.Pull(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, &queue.Message{ID: "msg-1", Body: "hello", ReceiptHandle: "rh-1"}, msg)

	msg, err = s.Pull(context.Background(), "orders")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestDeleteInvalidHandle(t *testing.T) {
	api := new(MockAPI)
	expectOrdersURL(api)
	api.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		return aws.ToString(in.ReceiptHandle) == "good"
	})).Return(&sqs.DeleteMessageOutput{}, nil)
	api.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		return aws.ToString(in.ReceiptHandle) == "stale"
	})).Return(nil, &types.ReceiptHandleIsInvalid{})

	s := New(api)
	ok, err := s.Delete(context.Background(), "orders", "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(context.Background(), "orders", "stale")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateQueue(t *testing.T) {
	api := new(MockAPI)
	api.On("CreateQueue", mock.Anything, mock.MatchedBy(func(in *sqs.CreateQueueInput) bool {
		return aws.ToString(in.QueueName) == "orders" && in.Attributes[queue.VisibilityTimeout] == "60"
	})).Return(&sqs.CreateQueueOutput{QueueUrl: aws.String(ordersURL)}, nil).Once()
	api.On("CreateQueue", mock.Anything, mock.Anything).
		Return(nil, &types.QueueNameExists{}).Once()

	s := New(api)
	ctx := context.Background()
	require.NoError(t, s.CreateQueue(ctx, "orders", map[string]string{queue.VisibilityTimeout: "60"}))
	assert.ErrorIs(t, s.CreateQueue(ctx, "orders", nil), store.ErrQueueAlreadyExists)
}

func TestUnsupportedAttributeIsNotForwarded(t *testing.T) {
	api := new(MockAPI)
	expectOrdersURL(api)

	s := New(api)
	err := s.SetQueueAttributes(context.Background(), "orders", map[string]string{"FifoQueue": "true"})
	assert.ErrorIs(t, err, store.ErrNotSupported)
	api.AssertNotCalled(t, "SetQueueAttributes", mock.Anything, mock.Anything)
}

func TestListQueuesFollowsPages(t *testing.T) {
	api := new(MockAPI)
	api.On("ListQueues", mock.Anything, mock.MatchedBy(func(in *sqs.ListQueuesInput) bool {
		return in.NextToken == nil
	})).Return(&sqs.ListQueuesOutput{
		QueueUrls: []string{ordersURL},
		NextToken: aws.String("page-2"),
	}, nil)
	api.On("ListQueues", mock.Anything, mock.MatchedBy(func(in *sqs.ListQueuesInput) bool {
		return aws.ToString(in.NextToken) == "page-2"
	})).Return(&sqs.ListQueuesOutput{
		QueueUrls: []string{"https://sqs.us-east-1.amazonaws.com/000000000000/emails"},
	}, nil)

	names, err := New(api).ListQueues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"emails", "orders"}, names)
}

func TestApproximateNumberOfMessages(t *testing.T) {
	api := new(MockAPI)
	expectOrdersURL(api)
	api.On("GetQueueAttributes", mock.Anything, mock.Anything).
		Return(&sqs.GetQueueAttributesOutput{Attributes: map[string]string{
			"ApproximateNumberOfMessages": "7",
		}}, nil)

	n, err := New(api).GetApproximateNumberOfMessages(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestGetQueueAttributesKeepsKnownNames(t *testing.T) {
	api := new(MockAPI)
	expectOrdersURL(api)
	api.On("GetQueueAttributes", mock.Anything, mock.Anything).
		Return(&sqs.GetQueueAttributesOutput{Attributes: map[string]string{
			queue.VisibilityTimeout: "45",
			"QueueArn":              "arn:aws:sqs:us-east-1:000000000000:orders",
		}}, nil)

	attrs, err := New(api).GetQueueAttributes(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{queue.VisibilityTimeout: "45"}, attrs)
}

func TestPurgeQueue(t *testing.T) {
	api := new(MockAPI)
	expectOrdersURL(api)
	api.On("PurgeQueue", mock.Anything, mock.Anything).Return(&sqs.PurgeQueueOutput{}, nil)

	ok, err := New(api).PurgeQueue(context.Background(), "orders")
	require.NoError(t, err)
	assert.True(t, ok)
}
