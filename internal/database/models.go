package database

import (
	"time"

	"github.com/lib/pq"
	"github.com/nitematch/nitematch/internal/questionnaire"
)

// Profile is one participant's submission as stored in the users table.
type Profile struct {
	ID               string        `json:"id" db:"id"`
	Alias            string        `json:"alias" db:"alias"`
	Gender           string        `json:"gender" db:"gender"`
	EmailFingerprint string        `json:"-" db:"email_fingerprint"`
	ContactEmail     *string       `json:"-" db:"contact_email"`
	SchemaVersion    int           `json:"schema_version" db:"schema_version"`
	Psych            pq.Int64Array `json:"-" db:"psych_vector"`
	Interest         pq.Int64Array `json:"-" db:"interest_vector"`
	Situation        pq.Int64Array `json:"-" db:"situation_vector"`
	ContactHandle    string        `json:"-" db:"contact_handle"`
	ShareContact     bool          `json:"share_contact" db:"share_contact"`
	Note             string        `json:"note" db:"note"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// Vectors converts the stored arrays back into questionnaire vectors.
func (p *Profile) Vectors() questionnaire.Vectors {
	return questionnaire.Vectors{
		SchemaVersion: p.SchemaVersion,
		Psych:         toInts(p.Psych),
		Interest:      toInts(p.Interest),
		Situation:     toInts(p.Situation),
	}
}

// SetVectors stores v on the profile.
func (p *Profile) SetVectors(v questionnaire.Vectors) {
	p.SchemaVersion = v.SchemaVersion
	p.Psych = toInt64s(v.Psych)
	p.Interest = toInt64s(v.Interest)
	p.Situation = toInt64s(v.Situation)
}

func toInts(in pq.Int64Array) []int {
	if in == nil {
		return nil
	}
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

func toInt64s(in []int) pq.Int64Array {
	out := make(pq.Int64Array, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ChannelID    string    `json:"channel_id"`
	Counterpart  string    `json:"counterpart"`
	LastActivity time.Time `json:"last_activity"`
	LastMessage  *string   `json:"last_message,omitempty"`
	Unread       int       `json:"unread"`
}
