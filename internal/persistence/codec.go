package persistence

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Encode serializes a record for storage. All durable records (runs,
// node executions, flow definitions, leases) go through here so the
// wire form stays uniform across backends.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// Decode deserializes a stored record into dst.
func Decode(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
