package schema

import (
	"encoding/json"
	"fmt"
)

// OpKind is the mutation a pending operation replays.
type OpKind string

const (
	OpCreate              OpKind = "create"
	OpUpdate              OpKind = "update"
	OpDelete              OpKind = "delete"
	OpClearDay            OpKind = "clearDay"
	OpUploadImage         OpKind = "uploadImage"
	OpUpdateFields        OpKind = "updateFields"
	OpSaveChannelSettings OpKind = "saveChannelSettings"
)

// Valid reports whether k is a known operation kind.
func (k OpKind) Valid() bool {
	switch k {
	case OpCreate, OpUpdate, OpDelete, OpClearDay, OpUploadImage, OpUpdateFields, OpSaveChannelSettings:
		return true
	}
	return false
}

// TargetsExisting reports whether the operation acts on an item that must
// already exist on the server.
func (k OpKind) TargetsExisting() bool {
	return k == OpUpdate || k == OpDelete || k == OpUpdateFields
}

// Creates reports whether the operation brings a local item into existence
// on the server.
func (k OpKind) Creates() bool {
	return k == OpCreate || k == OpUploadImage
}

// EntityType is the family of record an operation targets.
type EntityType string

const (
	EntityItem            EntityType = "item"
	EntityChannelSettings EntityType = "channel_settings"
)

// ChannelSettingsEntityID is the entity ID used for settings saves.
const ChannelSettingsEntityID = "channel_settings"

// PendingOperation is a queued mutation waiting to reach the server.
// Seq and CreatedAt together give the queue's FIFO order.
type PendingOperation struct {
	Seq            int64           `json:"seq" db:"seq"`
	Kind           OpKind          `json:"kind" db:"kind"`
	EntityType     EntityType      `json:"entity_type" db:"entity_type"`
	EntityID       string          `json:"entity_id" db:"entity_id"`
	Payload        json.RawMessage `json:"payload,omitempty" db:"payload"`
	AttachmentPath *string         `json:"attachment_path,omitempty" db:"attachment_path"`
	Date           string          `json:"date" db:"date"`
	RetryCount     int             `json:"retry_count" db:"retry_count"`
	LastError      *string         `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      string          `json:"created_at" db:"created_at"`
}

// Validate checks the fields every queued operation must have.
func (op *PendingOperation) Validate() error {
	if !op.Kind.Valid() {
		return fmt.Errorf("invalid operation kind %q", op.Kind)
	}
	switch op.EntityType {
	case EntityItem, EntityChannelSettings:
	default:
		return fmt.Errorf("invalid entity type %q", op.EntityType)
	}
	if op.EntityID == "" && op.Kind != OpClearDay {
		return fmt.Errorf("entity_id is required for %s", op.Kind)
	}
	if op.Kind == OpClearDay && !ValidDate(op.Date) {
		return fmt.Errorf("clearDay requires a date (got %q)", op.Date)
	}
	if op.Kind == OpUploadImage && (op.AttachmentPath == nil || *op.AttachmentPath == "") {
		return fmt.Errorf("uploadImage requires an attachment")
	}
	return nil
}

// DecodePayload unmarshals the operation payload into v.
func (op *PendingOperation) DecodePayload(v any) error {
	if len(op.Payload) == 0 {
		return fmt.Errorf("operation %d (%s) has no payload", op.Seq, op.Kind)
	}
	if err := json.Unmarshal(op.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", op.Kind, err)
	}
	return nil
}

// EncodePayload marshals v for storage in a pending operation. A nil v
// encodes as an empty object.
func EncodePayload(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// UpdatePayload is the payload of an update operation.
type UpdatePayload struct {
	Content string `json:"content"`
}

// UploadPayload is the payload of an uploadImage operation.
type UploadPayload struct {
	Filename string `json:"filename"`
}

// ChannelSettingsPayload is the payload of a saveChannelSettings operation.
type ChannelSettingsPayload struct {
	Channels []ChannelSetting `json:"channels"`
}
