package schema

import (
	"encoding/json"
	"fmt"
)

// ItemType is the kind of content an item holds.
type ItemType string

const (
	ItemText  ItemType = "text"
	ItemURL   ItemType = "url"
	ItemImage ItemType = "image"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemText, ItemURL, ItemImage:
		return true
	}
	return false
}

// PendingImageContent is the placeholder content of an image item whose
// upload is still queued.
const PendingImageContent = "[Image pending upload]"

// ItemEdit records the content an item had before an edit.
type ItemEdit struct {
	ID         string `json:"id"`
	OldContent string `json:"old_content"`
	EditedAt   string `json:"edited_at"`
}

// Item is a single journal entry owned by a day.
//
// Edits only ever grow. IsLocal marks a record created on this device that
// the server has not acknowledged yet; it is never sent over the wire.
type Item struct {
	ID                  string   `json:"id" db:"id"`
	Type                ItemType `json:"type" db:"type"`
	Content             string   `json:"content" db:"content"`
	ExtractedText       *string  `json:"extracted_text,omitempty" db:"extracted_text"`
	ExtractError        *string  `json:"extract_error,omitempty" db:"extract_error"`
	Date                string   `json:"date" db:"date"`
	Cleared             bool     `json:"cleared" db:"cleared"`
	CreatedAt           string   `json:"created_at" db:"created_at"`
	UpdatedAt           string   `json:"updated_at" db:"updated_at"`
	Edits               Edits    `json:"edits,omitempty" db:"edits"`
	Importance          *int     `json:"importance,omitempty" db:"importance"`
	IncludeInGeneration bool     `json:"include_in_generation" db:"include_in_generation"`
	IsLocal             bool     `json:"-" db:"is_local"`
}

// UnmarshalJSON decodes an item, treating a missing include_in_generation
// as true.
func (i *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	aux := struct {
		*plain
		IncludeInGeneration *bool `json:"include_in_generation"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.IncludeInGeneration = aux.IncludeInGeneration == nil || *aux.IncludeInGeneration
	return nil
}

// Validate checks the fields every cached item must have.
func (i *Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !i.Type.Valid() {
		return fmt.Errorf("invalid item type %q", i.Type)
	}
	if !ValidDate(i.Date) {
		return fmt.Errorf("date must be yyyy-MM-dd (got %q)", i.Date)
	}
	if i.Importance != nil && (*i.Importance < 1 || *i.Importance > 5) {
		return fmt.Errorf("importance must be between 1 and 5 (got %d)", *i.Importance)
	}
	return nil
}

// ApplyEdit replaces the content and appends the previous content to the
// edit history.
func (i *Item) ApplyEdit(content, now string) {
	if content == i.Content {
		i.UpdatedAt = now
		return
	}
	i.Edits = append(i.Edits, ItemEdit{
		ID:         NewEditID(),
		OldContent: i.Content,
		EditedAt:   now,
	})
	i.Content = content
	i.UpdatedAt = now
}

// ApplyFields overlays the set fields of f onto the item.
func (i *Item) ApplyFields(f ItemFields, now string) {
	switch {
	case f.ClearImportance:
		i.Importance = nil
	case f.Importance != nil:
		v := *f.Importance
		i.Importance = &v
	}
	if f.IncludeInGeneration != nil {
		i.IncludeInGeneration = *f.IncludeInGeneration
	}
	i.UpdatedAt = now
}

// CreateItemRequest is the body of an item create.
type CreateItemRequest struct {
	Type    ItemType `json:"type"`
	Content string   `json:"content"`
	Date    string   `json:"date"`
}

// ItemFields is a partial update of an item's flags. Only set fields are
// applied; ClearImportance removes the importance rank.
type ItemFields struct {
	Importance          *int  `json:"importance,omitempty"`
	ClearImportance     bool  `json:"clear_importance,omitempty"`
	IncludeInGeneration *bool `json:"include_in_generation,omitempty"`
}

// Merge returns f with every field set in next overlaid on top.
func (f ItemFields) Merge(next ItemFields) ItemFields {
	out := f
	switch {
	case next.ClearImportance:
		out.Importance = nil
		out.ClearImportance = true
	case next.Importance != nil:
		v := *next.Importance
		out.Importance = &v
		out.ClearImportance = false
	}
	if next.IncludeInGeneration != nil {
		v := *next.IncludeInGeneration
		out.IncludeInGeneration = &v
	}
	return out
}

// Empty reports whether no field is set.
func (f ItemFields) Empty() bool {
	return f.Importance == nil && !f.ClearImportance && f.IncludeInGeneration == nil
}

// ImportanceFields builds a field update for an importance rank; nil clears it.
func ImportanceFields(importance *int) ItemFields {
	if importance == nil {
		return ItemFields{ClearImportance: true}
	}
	v := *importance
	return ItemFields{Importance: &v}
}

// IncludeFields builds a field update for the include-in-generation flag.
func IncludeFields(include bool) ItemFields {
	return ItemFields{IncludeInGeneration: &include}
}
