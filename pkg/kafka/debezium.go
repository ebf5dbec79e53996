package kafka

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/Ramsey-B/laurel/pkg/models"
)

// DebeziumEnvelope is the standard Debezium CDC message format. Source
// registries streamed through a Debezium connector arrive in this shape on
// the record feed.
type DebeziumEnvelope struct {
	Schema  json.RawMessage `json:"schema,omitempty"`
	Payload DebeziumPayload `json:"payload"`
}

// DebeziumPayload contains the before/after state of a row
type DebeziumPayload struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Source DebeziumSource  `json:"source"`
	Op     string          `json:"op"` // c=create, u=update, d=delete, r=read (snapshot)
	TsMs   int64           `json:"ts_ms"`
}

// DebeziumSource contains metadata about the source of the change
type DebeziumSource struct {
	Version   string `json:"version"`
	Connector string `json:"connector"`
	Name      string `json:"name"`
	TsMs      int64  `json:"ts_ms"`
	Snapshot  string `json:"snapshot,omitempty"`
	Db        string `json:"db"`
	Schema    string `json:"schema"`
	Table     string `json:"table"`
}

// IsUpsert returns true for creates, updates and snapshot reads.
func (p *DebeziumPayload) IsUpsert() bool {
	return p.Op == "c" || p.Op == "u" || p.Op == "r"
}

// IsDelete returns true if this is a delete operation
func (p *DebeziumPayload) IsDelete() bool {
	return p.Op == "d"
}

// Timestamp returns the event timestamp
func (p *DebeziumPayload) Timestamp() time.Time {
	return time.UnixMilli(p.TsMs)
}

// RegistryRow is the row shape source registries stream. Attributes may
// arrive as an embedded JSON object or as a JSON-encoded string depending on
// connector config.
type RegistryRow struct {
	DocumentType string          `json:"document_type"`
	IDNumber     string          `json:"id_number"`
	FullName     string          `json:"full_name"`
	DateOfBirth  string          `json:"date_of_birth"`
	Address      string          `json:"address"`
	Attributes   json.RawMessage `json:"attributes"`
	Source       string          `json:"source"`
	UpdatedAt    string          `json:"updated_at"`
}

// ParseRegistryRow parses the After payload as a registry row. Deletes and
// tombstones have no After and return nil.
func (p *DebeziumPayload) ParseRegistryRow() (*RegistryRow, error) {
	if len(p.After) == 0 || string(p.After) == "null" {
		return nil, nil
	}

	var row RegistryRow
	if err := json.Unmarshal(p.After, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// ToUpsertRequest converts the CDC row to the shared upsert request shape.
func (r *RegistryRow) ToUpsertRequest() (*models.UpsertRecordRequest, error) {
	attributes, err := parseAttributes(r.Attributes)
	if err != nil {
		return nil, err
	}

	return &models.UpsertRecordRequest{
		DocumentType:       r.DocumentType,
		IDNumber:           r.IDNumber,
		Name:               r.FullName,
		DateOfBirthOrIssue: r.DateOfBirth,
		Address:            r.Address,
		Attributes:         attributes,
		Source:             r.Source,
	}, nil
}

// parseAttributes tolerates both embedded objects and JSON-encoded strings,
// which is how jsonb columns surface depending on connector config.
func parseAttributes(raw json.RawMessage) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = bytes.TrimSpace(json.RawMessage(s))
		if len(raw) == 0 {
			return nil, nil
		}
	}

	var attributes map[string]string
	if err := json.Unmarshal(raw, &attributes); err != nil {
		return nil, err
	}
	return attributes, nil
}

// ParseDebeziumMessage parses a raw Kafka message as a Debezium envelope
func ParseDebeziumMessage(data []byte) (*DebeziumEnvelope, error) {
	var envelope DebeziumEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}
