package schema

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers minted on the client.
const TempIDPrefix = "temp_"

const (
	// DateLayout is the owning-date format used for items, generations and summaries.
	DateLayout = "2006-01-02"

	// TimestampLayout is the format of locally minted timestamps.
	TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// naiveLayout covers server timestamps that omit the zone; they are read as UTC.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// NewTempID returns a new client-side item identifier.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was minted on the client and has not been
// replaced by a server ID yet.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// NewEditID returns an identifier for an optimistic edit entry.
func NewEditID() string {
	return uuid.NewString()
}

// FormatTimestamp renders t in TimestampLayout (always UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FormatDate renders t as an owning date in t's location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseTimestamp parses RFC 3339 timestamps and zone-less ISO-8601 ones.
func ParseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(naiveLayout, s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// CompareTimestamps returns -1, 0 or 1 as a is before, equal to or after b.
// Values that do not parse are compared as strings.
func CompareTimestamps(a, b string) int {
	ta, okA := ParseTimestamp(a)
	tb, okB := ParseTimestamp(b)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

// ValidDate reports whether s is a yyyy-MM-dd date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// DateCutoff returns the owning date that lies days before now. Records with
// a date strictly before the cutoff are outside the retention window.
func DateCutoff(now time.Time, days int) string {
	return FormatDate(now.AddDate(0, 0, -days))
}
