// Package phase decides whether the system is collecting submissions or
// revealing matches.
package phase

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Phase is the system-wide mode derived from the clock.
type Phase string

const (
	Collection Phase = "collection"
	Reveal     Phase = "reveal"
)

// Clock supplies the current time. Services take a Clock so the gate can be
// exercised deterministically.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Countdown is the time left before unlock, split for display.
type Countdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// String renders the countdown as "DDd HHh MMm SSs".
func (c Countdown) String() string {
	return fmt.Sprintf("%02dd %02dh %02dm %02ds", c.Days, c.Hours, c.Minutes, c.Seconds)
}

// Gate compares instants against a single unlock instant in a fixed
// operating offset.
type Gate struct {
	unlock   time.Time
	location *time.Location
}

// NewGate builds a gate whose comparisons happen in loc.
func NewGate(unlock time.Time, loc *time.Location) *Gate {
	if loc == nil {
		loc = unlock.Location()
	}
	return &Gate{unlock: unlock.In(loc), location: loc}
}

// Unlock returns the unlock instant in the operating offset.
func (g *Gate) Unlock() time.Time { return g.unlock }

// Location returns the operating offset.
func (g *Gate) Location() *time.Location { return g.location }

// IsUnlocked reports whether now is at or after the unlock instant.
func (g *Gate) IsUnlocked(now time.Time) bool {
	return !now.In(g.location).Before(g.unlock)
}

// Phase returns the phase at now.
func (g *Gate) Phase(now time.Time) Phase {
	if g.IsUnlocked(now) {
		return Reveal
	}
	return Collection
}

// TimeRemaining returns the countdown until unlock, or zero once unlocked.
func (g *Gate) TimeRemaining(now time.Time) Countdown {
	if g.IsUnlocked(now) {
		return Countdown{}
	}
	remaining := int(g.unlock.Sub(now.In(g.location)) / time.Second)
	days, r := remaining/86400, remaining%86400
	hours, r := r/3600, r%3600
	return Countdown{Days: days, Hours: hours, Minutes: r / 60, Seconds: r % 60}
}

var (
	ErrMissingOffset = errors.New("timestamp must carry an explicit UTC offset")
	ErrInvalidOffset = errors.New("invalid UTC offset")
)

var explicitOffset = regexp.MustCompile(`(Z|[+-]\d{2}:\d{2})$`)

// ParseUnlock parses an RFC 3339 timestamp and refuses naive local times.
func ParseUnlock(value string) (time.Time, error) {
	if !explicitOffset.MatchString(value) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMissingOffset, value)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid unlock instant: %w", err)
	}
	return t, nil
}

var offsetPattern = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)

// ParseOffset turns "+05:30" into a fixed zone named after the offset.
func ParseOffset(value string) (*time.Location, error) {
	if value == "Z" || value == "+00:00" || value == "-00:00" {
		return time.UTC, nil
	}
	m := offsetPattern.FindStringSubmatch(value)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOffset, value)
	}
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	if hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOffset, value)
	}
	seconds := hours*3600 + minutes*60
	if m[1] == "-" {
		seconds = -seconds
	}
	return time.FixedZone("UTC"+value, seconds), nil
}
