package schema

import (
	"strings"
	"testing"
)

func TestPendingOperation_Validate(t *testing.T) {
	path := "/tmp/pending_images/temp_1_photo.jpg"
	tests := []struct {
		name    string
		op      PendingOperation
		wantErr string
	}{
		{
			name: "create",
			op:   PendingOperation{Kind: OpCreate, EntityType: EntityItem, EntityID: "temp_1", Date: "2025-01-10"},
		},
		{
			name: "clear day without entity",
			op:   PendingOperation{Kind: OpClearDay, EntityType: EntityItem, Date: "2025-01-10"},
		},
		{
			name:    "clear day without date",
			op:      PendingOperation{Kind: OpClearDay, EntityType: EntityItem},
			wantErr: "clearDay requires a date",
		},
		{
			name:    "unknown kind",
			op:      PendingOperation{Kind: "rename", EntityType: EntityItem, EntityID: "x"},
			wantErr: "invalid operation kind",
		},
		{
			name:    "upload without attachment",
			op:      PendingOperation{Kind: OpUploadImage, EntityType: EntityItem, EntityID: "temp_1"},
			wantErr: "requires an attachment",
		},
		{
			name: "upload with attachment",
			op:   PendingOperation{Kind: OpUploadImage, EntityType: EntityItem, EntityID: "temp_1", AttachmentPath: &path},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestOpKindClasses(t *testing.T) {
	for _, k := range []OpKind{OpCreate, OpUploadImage} {
		if !k.Creates() || k.TargetsExisting() {
			t.Errorf("%s: Creates()=%v TargetsExisting()=%v", k, k.Creates(), k.TargetsExisting())
		}
	}
	for _, k := range []OpKind{OpUpdate, OpUpdateFields, OpDelete} {
		if k.Creates() || !k.TargetsExisting() {
			t.Errorf("%s: Creates()=%v TargetsExisting()=%v", k, k.Creates(), k.TargetsExisting())
		}
	}
	for _, k := range []OpKind{OpClearDay, OpSaveChannelSettings} {
		if k.Creates() || k.TargetsExisting() {
			t.Errorf("%s: Creates()=%v TargetsExisting()=%v", k, k.Creates(), k.TargetsExisting())
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	payload, err := EncodePayload(CreateItemRequest{Type: ItemText, Content: "Buy milk", Date: "2025-01-10"})
	if err != nil {
		t.Fatalf("EncodePayload failed: %v", err)
	}
	op := PendingOperation{Kind: OpCreate, Payload: payload}

	var req CreateItemRequest
	if err := op.DecodePayload(&req); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if req.Content != "Buy milk" || req.Date != "2025-01-10" {
		t.Errorf("decoded %+v", req)
	}

	empty, _ := EncodePayload(nil)
	if string(empty) != "{}" {
		t.Errorf("nil payload encoded as %s", empty)
	}
}
