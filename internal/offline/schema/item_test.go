package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid item",
			item: Item{ID: "srv_1", Type: ItemText, Content: "Buy milk", Date: "2025-01-10"},
		},
		{
			name:    "missing id",
			item:    Item{Type: ItemText, Date: "2025-01-10"},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "unknown type",
			item:    Item{ID: "srv_1", Type: "video", Date: "2025-01-10"},
			wantErr: true,
			errMsg:  "invalid item type",
		},
		{
			name:    "bad date",
			item:    Item{ID: "srv_1", Type: ItemURL, Date: "10/01/2025"},
			wantErr: true,
			errMsg:  "date must be yyyy-MM-dd",
		},
		{
			name:    "importance out of range",
			item:    Item{ID: "srv_1", Type: ItemText, Date: "2025-01-10", Importance: intPtr(6)},
			wantErr: true,
			errMsg:  "importance must be between 1 and 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want to contain %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestItem_UnmarshalDefaultsIncludeInGeneration(t *testing.T) {
	var item Item
	data := `{"id":"srv_42","type":"text","content":"Buy milk","date":"2025-01-10","cleared":false,"created_at":"2025-01-10T08:00:00Z","updated_at":"2025-01-10T08:00:00Z"}`
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !item.IncludeInGeneration {
		t.Error("missing include_in_generation should default to true")
	}
	if item.Content != "Buy milk" || item.ID != "srv_42" {
		t.Errorf("unexpected item: %+v", item)
	}

	data = `{"id":"srv_43","type":"url","content":"https://example.com","date":"2025-01-10","include_in_generation":false,"importance":4}`
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if item.IncludeInGeneration {
		t.Error("explicit include_in_generation=false was lost")
	}
	if item.Importance == nil || *item.Importance != 4 {
		t.Errorf("importance = %v, want 4", item.Importance)
	}
}

func TestItem_LocalFlagNotSerialized(t *testing.T) {
	item := Item{ID: "temp_1", Type: ItemText, Date: "2025-01-10", IsLocal: true}
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "local") {
		t.Errorf("local flag leaked into JSON: %s", data)
	}
}

func TestItem_ApplyEditAppendsHistory(t *testing.T) {
	item := Item{ID: "srv_1", Content: "first", UpdatedAt: "2025-01-10T08:00:00.000000Z"}

	item.ApplyEdit("second", "2025-01-10T09:00:00.000000Z")
	item.ApplyEdit("third", "2025-01-10T10:00:00.000000Z")

	if item.Content != "third" {
		t.Errorf("content = %q, want third", item.Content)
	}
	if len(item.Edits) != 2 {
		t.Fatalf("edits = %d, want 2", len(item.Edits))
	}
	if item.Edits[0].OldContent != "first" || item.Edits[1].OldContent != "second" {
		t.Errorf("edit history out of order: %+v", item.Edits)
	}
	if item.UpdatedAt != "2025-01-10T10:00:00.000000Z" {
		t.Errorf("updated_at = %q", item.UpdatedAt)
	}
}

func TestItemFields_Merge(t *testing.T) {
	prior := ImportanceFields(intPtr(2))
	merged := prior.Merge(IncludeFields(false))

	if merged.Importance == nil || *merged.Importance != 2 {
		t.Errorf("importance lost in merge: %+v", merged)
	}
	if merged.IncludeInGeneration == nil || *merged.IncludeInGeneration {
		t.Errorf("include flag not overlaid: %+v", merged)
	}

	cleared := merged.Merge(ImportanceFields(nil))
	if cleared.Importance != nil || !cleared.ClearImportance {
		t.Errorf("clear did not override importance: %+v", cleared)
	}

	again := cleared.Merge(ImportanceFields(intPtr(5)))
	if again.ClearImportance || again.Importance == nil || *again.Importance != 5 {
		t.Errorf("new importance did not replace clear: %+v", again)
	}

	if !(ItemFields{}).Empty() {
		t.Error("zero ItemFields should be empty")
	}
}

func TestItem_ApplyFields(t *testing.T) {
	item := Item{ID: "srv_1", IncludeInGeneration: true, Importance: intPtr(3)}

	item.ApplyFields(IncludeFields(false), "2025-01-10T10:00:00.000000Z")
	if item.IncludeInGeneration {
		t.Error("include flag not applied")
	}
	if item.Importance == nil || *item.Importance != 3 {
		t.Error("importance should be untouched")
	}

	item.ApplyFields(ImportanceFields(nil), "2025-01-10T11:00:00.000000Z")
	if item.Importance != nil {
		t.Error("importance should be cleared")
	}
}
