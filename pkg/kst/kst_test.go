package kst

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarDayOfBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		instant string
		want    string
	}{
		{"utc morning stays same day", "2026-03-02T00:05:00Z", "2026-03-02"},
		{"utc evening crosses into next day", "2026-03-02T15:30:00Z", "2026-03-03"},
		{"exactly 15:00 utc is kst midnight", "2026-03-02T15:00:00Z", "2026-03-03"},
		{"one second before kst midnight", "2026-03-02T14:59:59Z", "2026-03-02"},
		{"year boundary", "2025-12-31T16:00:00Z", "2026-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instant, err := ParseInstant(tt.instant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, CalendarDayOf(instant))
		})
	}
}

func TestCalendarDayOfIgnoresInputZone(t *testing.T) {
	// The same absolute instant expressed in different zones must bucket
	// identically; only the offset math may matter, never the representation.
	utc, err := ParseInstant("2026-03-02T15:30:00Z")
	require.NoError(t, err)

	for _, zone := range []*time.Location{
		time.UTC,
		time.FixedZone("UTC-11", -11*3600),
		time.FixedZone("UTC+13", 13*3600),
	} {
		assert.Equal(t, "2026-03-03", CalendarDayOf(utc.In(zone)))
		assert.Equal(t, "00:30", TimeOfDay(utc.In(zone)))
	}
}

func TestComposeInstantRoundTrip(t *testing.T) {
	instants := []string{
		"2026-03-02T00:05:00Z",
		"2026-03-02T15:30:00Z",
		"2026-06-15T23:59:00+09:00",
		"2025-12-31T16:00:00Z",
	}

	for _, s := range instants {
		in, err := ParseInstant(s)
		require.NoError(t, err)

		out, err := ComposeInstant(CalendarDayOf(in), TimeOfDay(in))
		require.NoError(t, err)

		// Round-trips at minute granularity: seconds truncate.
		assert.True(t, out.Equal(in.Truncate(time.Minute)), "round trip of %s", s)
	}
}

func TestComposeInstantCarriesFixedOffset(t *testing.T) {
	out, err := ComposeInstant("2026-03-03", "00:30")
	require.NoError(t, err)

	_, offset := out.Zone()
	assert.Equal(t, 9*3600, offset)
	assert.Equal(t, "2026-03-02T15:30:00Z", out.UTC().Format(time.RFC3339))
}

func TestComposeInstantRejectsMalformedInput(t *testing.T) {
	cases := [][2]string{
		{"2026-3-2", "09:00"},
		{"2026-03-02", "9:00"},
		{"2026-03-02", "24:30"},
		{"2026-13-01", "09:00"},
		{"not-a-day", "09:00"},
		{"2026-03-02", ""},
	}

	for _, c := range cases {
		_, err := ComposeInstant(c[0], c[1])
		var perr *ParseError
		assert.ErrorAs(t, err, &perr, "day=%q clock=%q", c[0], c[1])
	}
}

func TestParseInstantRejectsMalformedInput(t *testing.T) {
	for _, s := range []string{"", "2026-03-02", "2026-03-02 10:00:00", "yesterday"} {
		_, err := ParseInstant(s)
		var perr *ParseError
		assert.ErrorAs(t, err, &perr, "input %q", s)
	}
}

func TestParseDay(t *testing.T) {
	day, err := ParseDay("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", day)

	for _, s := range []string{"2026-3-2", "2026-03-02T00:00:00Z", ""} {
		_, err := ParseDay(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestDisplayFormatting(t *testing.T) {
	assert.Equal(t, "2026.03.02", DisplayDate("2026-03-02"))

	in, err := ParseInstant("2026-03-02T15:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2026.03.03 00:30", DisplayDateTime(in))
}
