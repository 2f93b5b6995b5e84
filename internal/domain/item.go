package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// ItemStatus tracks a domain item through one processing concern
// (parsing, embedding, explanation). Failed is terminal and is never
// auto-retried by the orchestrator.
type ItemStatus string

const (
	ItemStatusPendingBatch ItemStatus = "pending_batch"
	ItemStatusProcessing   ItemStatus = "processing"
	ItemStatusCompleted    ItemStatus = "completed"
	ItemStatusFailed       ItemStatus = "failed"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

// JSONMap is a custom type for storing JSON objects as text in the database.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the map.
//   - error: non-nil if marshaling fails.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}
