package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp wraps time.Time with tolerant JSON decoding. Upstream services
// disagree on wire format: some write ISO-8601 strings, others Unix-epoch
// milliseconds (bare numbers or numeric strings). All three decode; encoding
// is always RFC 3339 UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps a time.Time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON encodes the timestamp as an RFC 3339 UTC string, or null for
// the zero value.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// UnmarshalJSON decodes an RFC 3339 string, an epoch-millisecond number, or
// an epoch-millisecond numeric string. null and "" decode to the zero value.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}

	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		parsed, err := parseTimestampString(unquoted)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}

	millis, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: not ISO-8601 or epoch millis", s)
	}
	t.Time = time.UnixMilli(millis).UTC()
	return nil
}

// parseTimestampString accepts RFC 3339 (with or without fractional seconds),
// the same without a zone (assumed UTC), or a string of epoch milliseconds.
func parseTimestampString(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), nil
		}
	}
	if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: not ISO-8601 or epoch millis", s)
}

// Age returns how long ago the timestamp was, per the injected domain clock.
// The zero value reports an effectively infinite age.
func (t Timestamp) Age() time.Duration {
	if t.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return clock.Now().Sub(t.Time)
}
