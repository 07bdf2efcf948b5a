package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/nitematch/nitematch/internal/questionnaire"
	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	config := Config{
		Host:     "localhost",
		Port:     "5432",
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "require",
	}

	assert.Equal(t, "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=require", config.DSN())
}

func TestNewConnection_Unreachable(t *testing.T) {
	tests := []struct {
		name         string
		instrumented bool
	}{
		{"plain", false},
		{"instrumented", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			db, err := NewConnection(ctx, Config{
				Host:         "127.0.0.1",
				Port:         "1",
				User:         "test",
				Password:     "test",
				DBName:       "test",
				SSLMode:      "disable",
				Instrumented: tt.instrumented,
			})
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "failed to ping database")
			assert.Nil(t, db)
		})
	}
}

func TestProfile_Vectors(t *testing.T) {
	p := &Profile{}
	v := questionnaire.Vectors{
		SchemaVersion: 3,
		Psych:         []int{1, 2, 3, 4, 5, 0, 1, 6, 0, 1},
		Interest:      []int{0, 7, 6, 5, 1},
		Situation:     []int{},
	}
	p.SetVectors(v)

	assert.Equal(t, pq.Int64Array{1, 2, 3, 4, 5, 0, 1, 6, 0, 1}, p.Psych)
	assert.NotNil(t, p.Situation)
	assert.Equal(t, v, p.Vectors())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("other")))
	assert.False(t, isUniqueViolation(nil))
}
