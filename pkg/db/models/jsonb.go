package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB holds a raw JSON document. It is written as text so the simple
// query protocol does not send it as bytea.
type JSONB json.RawMessage

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported JSONB source %T", src)
	}
	return nil
}

// MarshalJSON keeps the document verbatim when the model itself is encoded.
func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}
