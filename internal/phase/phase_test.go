package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGate(t *testing.T) *Gate {
	t.Helper()
	loc, err := ParseOffset("+05:30")
	require.NoError(t, err)
	unlock, err := ParseUnlock("2026-02-06T20:00:00+05:30")
	require.NoError(t, err)
	return NewGate(unlock, loc)
}

func TestGate_IsUnlocked(t *testing.T) {
	g := testGate(t)

	tests := []struct {
		name     string
		now      time.Time
		expected bool
	}{
		{"a second before", time.Date(2026, 2, 6, 14, 29, 59, 0, time.UTC), false},
		{"exactly at unlock", time.Date(2026, 2, 6, 14, 30, 0, 0, time.UTC), true},
		{"after", time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC), true},
		{"same wall time in UTC is later", time.Date(2026, 2, 6, 20, 0, 0, 0, time.UTC), true},
		{"just before in a third zone", time.Date(2026, 2, 6, 9, 29, 0, 0, time.FixedZone("EST", -5*3600)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, g.IsUnlocked(tt.now))
			if tt.expected {
				assert.Equal(t, Reveal, g.Phase(tt.now))
			} else {
				assert.Equal(t, Collection, g.Phase(tt.now))
			}
		})
	}
}

func TestGate_TimeRemaining(t *testing.T) {
	g := testGate(t)
	now := g.Unlock().Add(-(2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second))

	c := g.TimeRemaining(now)
	assert.Equal(t, Countdown{Days: 2, Hours: 3, Minutes: 4, Seconds: 5}, c)
	assert.Equal(t, "02d 03h 04m 05s", c.String())

	assert.Equal(t, Countdown{}, g.TimeRemaining(g.Unlock().Add(time.Minute)))
}

func TestParseUnlock_RequiresOffset(t *testing.T) {
	_, err := ParseUnlock("2026-02-06T20:00:00")
	assert.ErrorIs(t, err, ErrMissingOffset)

	ts, err := ParseUnlock("2026-02-06T14:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 14, ts.Hour())
}

func TestParseOffset(t *testing.T) {
	loc, err := ParseOffset("-03:00")
	require.NoError(t, err)
	_, offset := time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -3*3600, offset)

	for _, bad := range []string{"0530", "+5:30", "+15:00", "IST"} {
		_, err := ParseOffset(bad)
		assert.ErrorIs(t, err, ErrInvalidOffset, bad)
	}
}
