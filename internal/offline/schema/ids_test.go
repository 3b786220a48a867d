package schema

import (
	"testing"
	"time"
)

func TestTempID(t *testing.T) {
	id := NewTempID()
	if !IsTempID(id) {
		t.Errorf("IsTempID(%q) = false", id)
	}
	if IsTempID("srv_42") {
		t.Error("server id reported as temp")
	}
	if NewTempID() == id {
		t.Error("temp ids must be unique")
	}
}

func TestCompareTimestamps(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "2025-01-10T08:00:00Z", "2025-01-10T08:00:00Z", 0},
		{"earlier", "2025-01-10T08:00:00Z", "2025-01-10T09:00:00Z", -1},
		{"precision mismatch", "2025-01-10T08:00:05.5Z", "2025-01-10T08:00:05Z", 1},
		{"zone offset", "2025-01-10T10:00:00+02:00", "2025-01-10T08:00:00Z", 0},
		{"naive server time", "2025-01-10T08:00:00.123456", "2025-01-10T08:00:00.000000Z", 1},
		{"unparseable falls back to strings", "b", "a", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareTimestamps(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareTimestamps(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestFormatTimestampSortsAsString(t *testing.T) {
	base := time.Date(2025, 1, 10, 8, 0, 5, 0, time.UTC)
	a := FormatTimestamp(base)
	b := FormatTimestamp(base.Add(500 * time.Millisecond))
	if !(a < b) {
		t.Errorf("%q should sort before %q", a, b)
	}
	if a != "2025-01-10T08:00:05.000000Z" {
		t.Errorf("FormatTimestamp = %q", a)
	}
}

func TestDateCutoff(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := DateCutoff(now, 20); got != "2025-02-09" {
		t.Errorf("DateCutoff = %q, want 2025-02-09", got)
	}
}
