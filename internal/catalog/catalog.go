// Package catalog records which queues exist and their attributes so a
// restarted server can recreate them. Messages are never written here.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
)

// QueueDefinition is one catalog row.
type QueueDefinition struct {
	Name       string
	Attributes map[string]string
}

// Catalog is the storage-agnostic interface for queue definitions.
type Catalog interface {
	// SaveQueue inserts or replaces a definition.
	SaveQueue(ctx context.Context, def QueueDefinition) error
	// DeleteQueue removes a definition; deleting a missing name is not an error.
	DeleteQueue(ctx context.Context, name string) error
	// LoadQueues returns every definition ordered by name.
	LoadQueues(ctx context.Context) ([]QueueDefinition, error)
	Close() error
}

// EncodeAttributes renders attributes as a JSON object; nil becomes {}.
func EncodeAttributes(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return b, nil
}

// DecodeAttributes parses a JSON object written by EncodeAttributes.
func DecodeAttributes(raw []byte) (map[string]string, error) {
	attrs := map[string]string{}
	if len(raw) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return attrs, nil
}
