package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/phase"
)

// RequirePhase rejects requests outside the given phase. Collection-only
// routes fail with SUBMISSIONS_CLOSED and reveal-only routes with
// RESULTS_LOCKED.
func RequirePhase(gate *phase.Gate, clock phase.Clock, want phase.Phase) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := clock.Now()
		if gate.Phase(now) == want {
			c.Next()
			return
		}

		if want == phase.Collection {
			Abort(c, errors.NewSubmissionsClosedError(gate.Unlock()))
			return
		}
		Abort(c, errors.NewResultsLockedError(gate.Unlock(), gate.TimeRemaining(now).String()))
	}
}
