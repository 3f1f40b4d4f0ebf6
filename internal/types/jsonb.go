package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. Scan is on the pointer receiver, Value
// on the value receiver; drift in either signature breaks the build here
// rather than at runtime.
var (
	_ sql.Scanner   = (*Payload)(nil)
	_ driver.Valuer = Payload(nil)
)

// Payload is the opaque feed-specific order data, persisted verbatim in a
// JSONB column for downstream replay. The engine stores and forwards it but
// never interprets its contents.
type Payload map[string]any

// Scan implements sql.Scanner for JSONB columns. Handles nil, []byte, and
// string representations from different drivers.
func (p *Payload) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("payload: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, p)
}

// Value implements driver.Valuer, marshaling to JSON bytes. A nil payload
// stores SQL NULL.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}
