package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the SQS Lite HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new SQS Lite client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Message is a pulled message. Receipt is needed to delete it.
type Message struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Receipt string `json:"receipt"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: %d %s - %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

func queuePath(queue string) string {
	return "/v1/queues/" + url.PathEscape(queue)
}

// do sends payload as JSON and decodes a JSON answer into out when out is non-nil.
// It returns the status code of any 2xx answer.
func (c *Client) do(ctx context.Context, op, method, path string, payload, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(bodyBytes, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		} else {
			apiErr.Message = string(bodyBytes)
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) CreateQueue(ctx context.Context, name string, attributes map[string]string) error {
	req := map[string]any{"name": name}
	if len(attributes) > 0 {
		req["attributes"] = attributes
	}
	_, err := c.do(ctx, "create queue", http.MethodPost, "/v1/queues", req, nil)
	return err
}

func (c *Client) DeleteQueue(ctx context.Context, name string) error {
	_, err := c.do(ctx, "delete queue", http.MethodDelete, queuePath(name), nil, nil)
	return err
}

func (c *Client) ListQueues(ctx context.Context) ([]string, error) {
	var result struct {
		Queues []string `json:"queues"`
	}
	if _, err := c.do(ctx, "list queues", http.MethodGet, "/v1/queues", nil, &result); err != nil {
		return nil, err
	}
	return result.Queues, nil
}

// Push sends body to queue and returns the message id.
func (c *Client) Push(ctx context.Context, queue, body string) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	req := map[string]string{"body": body}
	if _, err := c.do(ctx, "push", http.MethodPost, queuePath(queue)+"/messages", req, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// PushJSON marshals v and pushes the encoded text as the message body.
func (c *Client) PushJSON(ctx context.Context, queue string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}
	return c.Push(ctx, queue, string(b))
}

// Pull returns the next available message, or nil when the queue has none.
func (c *Client) Pull(ctx context.Context, queue string) (*Message, error) {
	var msg Message
	code, err := c.do(ctx, "pull", http.MethodPost, queuePath(queue)+":receive", nil, &msg)
	if err != nil {
		return nil, err
	}
	if code == http.StatusNoContent {
		return nil, nil
	}
	return &msg, nil
}

// Delete removes a pulled message. It reports false when the receipt is no
// longer valid (already deleted, or expired and returned to the queue).
func (c *Client) Delete(ctx context.Context, queue, receipt string) (bool, error) {
	path := queuePath(queue) + "/messages/" + url.PathEscape(receipt)
	_, err := c.do(ctx, "delete", http.MethodDelete, path, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound && apiErr.Message == "receipt handle not found" {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Purge(ctx context.Context, queue string) error {
	_, err := c.do(ctx, "purge", http.MethodPost, queuePath(queue)+":purge", nil, nil)
	return err
}

func (c *Client) GetAttributes(ctx context.Context, queue string) (map[string]string, error) {
	var result struct {
		Attributes map[string]string `json:"attributes"`
	}
	if _, err := c.do(ctx, "get attributes", http.MethodGet, queuePath(queue)+"/attributes", nil, &result); err != nil {
		return nil, err
	}
	return result.Attributes, nil
}

// SetAttributes returns the attributes in effect after the update. Invalid
// values are replaced by their defaults server-side.
func (c *Client) SetAttributes(ctx context.Context, queue string, attributes map[string]string) (map[string]string, error) {
	var result struct {
		Attributes map[string]string `json:"attributes"`
	}
	req := map[string]any{"attributes": attributes}
	if _, err := c.do(ctx, "set attributes", http.MethodPut, queuePath(queue)+"/attributes", req, &result); err != nil {
		return nil, err
	}
	return result.Attributes, nil
}

func (c *Client) ApproximateNumberOfMessages(ctx context.Context, queue string) (int, error) {
	var result struct {
		Count int `json:"approximate_number_of_messages"`
	}
	if _, err := c.do(ctx, "count", http.MethodGet, queuePath(queue)+"/count", nil, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}
