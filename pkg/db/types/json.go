package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// StringMap is a flat key/value document stored as jsonb.
type StringMap map[string]string

func (m *StringMap) Scan(src any) error {
	if src == nil {
		*m = StringMap{}
		return nil
	}
	raw, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("StringMap: %w", err)
	}
	if len(raw) == 0 {
		*m = StringMap{}
		return nil
	}
	out := StringMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("StringMap: decode: %w", err)
	}
	*m = out
	return nil
}

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Get returns the value for key or an empty string.
func (m StringMap) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// ReservationLine is one inventory hold taken for a transaction.
type ReservationLine struct {
	ItemID uuid.UUID `json:"item_id"`
	Qty    int       `json:"qty"`
}

// ReservationLines is stored as a jsonb array.
type ReservationLines []ReservationLine

func (l *ReservationLines) Scan(src any) error {
	if src == nil {
		*l = ReservationLines{}
		return nil
	}
	raw, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("ReservationLines: %w", err)
	}
	if len(raw) == 0 {
		*l = ReservationLines{}
		return nil
	}
	out := ReservationLines{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("ReservationLines: decode: %w", err)
	}
	*l = out
	return nil
}

func (l ReservationLines) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]ReservationLine(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported Scan type %T", src)
	}
}
