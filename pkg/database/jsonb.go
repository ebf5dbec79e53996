package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB adapts a Go value to a Postgres jsonb column. A SQL NULL scans to
// the zero value of T; a nil pointer T writes SQL NULL back.
type JSONB[T any] struct {
	Data T
}

// NewJSONB wraps a value for writing
func NewJSONB[T any](data T) JSONB[T] {
	return JSONB[T]{Data: data}
}

func (j *JSONB[T]) Scan(src any) error {
	if src == nil {
		var zero T
		j.Data = zero
		return nil
	}

	switch b := src.(type) {
	case []byte:
		return json.Unmarshal(b, &j.Data)
	case string:
		return json.Unmarshal([]byte(b), &j.Data)
	default:
		return fmt.Errorf("JSONB.Scan: expected []byte or string, got %T", src)
	}
}

func (j JSONB[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

func (j *JSONB[T]) GetValue() T {
	return j.Data
}
