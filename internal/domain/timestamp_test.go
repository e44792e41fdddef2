package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	ref := time.Date(2026, time.July, 14, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", `"2026-07-14T09:30:00Z"`, ref},
		{"rfc3339 with offset", `"2026-07-14T15:00:00+05:30"`, ref},
		{"rfc3339 fractional", `"2026-07-14T09:30:00.000Z"`, ref},
		{"no zone assumed utc", `"2026-07-14T09:30:00"`, ref},
		{"epoch millis number", `1784021400000`, ref},
		{"epoch millis string", `"1784021400000"`, ref},
		{"null", `null`, time.Time{}},
		{"empty string", `""`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.True(t, ts.Time.Equal(tt.want), "got %v want %v", ts.Time, tt.want)
		})
	}
}

func TestTimestamp_UnmarshalJSON_Invalid(t *testing.T) {
	for _, input := range []string{`"yesterday"`, `"2026-13-45"`, `true`} {
		var ts Timestamp
		assert.Error(t, json.Unmarshal([]byte(input), &ts), "input %s", input)
	}
}

func TestTimestamp_MarshalJSON(t *testing.T) {
	ts := NewTimestamp(time.Date(2026, time.July, 14, 9, 30, 0, 0, time.UTC))
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-07-14T09:30:00Z"`, string(data))

	data, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, `null`, string(data))
}

func TestTimestamp_RoundTrip(t *testing.T) {
	orig := NewTimestamp(time.Date(2026, time.March, 1, 18, 45, 12, 0, time.UTC))
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Timestamp
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(orig.Time))
}

func TestTimestamp_Age(t *testing.T) {
	fake := clockwork.NewFakeClock()
	SetClock(fake)
	defer SetClock(nil)

	ts := NewTimestamp(fake.Now().Add(-4 * time.Minute))
	assert.Equal(t, 4*time.Minute, ts.Age())

	// Zero timestamps are effectively infinitely old.
	assert.Greater(t, Timestamp{}.Age(), 100*365*24*time.Hour)
}

func TestAlertLevelForProbability(t *testing.T) {
	tests := []struct {
		probability float64
		want        AlertLevel
	}{
		{0, LevelNormal},
		{24.99, LevelNormal},
		{25, LevelElevated},
		{49.99, LevelElevated},
		{50, LevelHigh},
		{74.99, LevelHigh},
		{75, LevelCritical},
		{100, LevelCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AlertLevelForProbability(tt.probability),
			"probability %v", tt.probability)
	}
}

func TestCoordinates_Valid(t *testing.T) {
	assert.True(t, Coordinates{Lat: 30.0, Lng: 78.0}.Valid())
	assert.False(t, Coordinates{Lat: 91, Lng: 78.0}.Valid())
	assert.False(t, Coordinates{Lat: 30.0, Lng: 181}.Valid())
}
