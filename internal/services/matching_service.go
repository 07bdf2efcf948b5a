package services

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/nitematch/nitematch/internal/cache"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/matching"
	"github.com/nitematch/nitematch/internal/phase"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// MatchView is one entry of a participant's match list
type MatchView struct {
	ProfileID     string  `json:"profile_id"`
	Alias         string  `json:"alias"`
	ScorePercent  float64 `json:"score_percent"`
	Note          string  `json:"note,omitempty"`
	ContactHandle string  `json:"contact_handle,omitempty"`
}

// Notice is a recoverable condition shown alongside an empty result
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MatchList is the reveal-phase result for one viewer
type MatchList struct {
	Matches    []MatchView `json:"matches"`
	Notice     *Notice     `json:"notice,omitempty"`
	ComputedAt time.Time   `json:"computed_at"`
	Cached     bool        `json:"cached"`
}

// cachedMatches holds ids and scores only; display fields are read fresh.
type cachedMatches struct {
	Results    []matching.Result `json:"results"`
	ComputedAt time.Time         `json:"computed_at"`
}

// MatchingService computes and caches match lists after unlock
type MatchingService struct {
	profiles ProfileRepository
	cache    MatchCache
	policy   matching.Policy
	gate     *phase.Gate
	clock    phase.Clock
	metrics  Metrics
}

// NewMatchingService creates a matching service
func NewMatchingService(profiles ProfileRepository, matchCache MatchCache, policy matching.Policy,
	gate *phase.Gate, clock phase.Clock, metrics Metrics) *MatchingService {
	if clock == nil {
		clock = phase.SystemClock
	}
	return &MatchingService{
		profiles: profiles,
		cache:    matchCache,
		policy:   policy,
		gate:     gate,
		clock:    clock,
		metrics:  metricsOrNoop(metrics),
	}
}

// Matches returns the viewer's ranked matches. A viewer whose own stored
// answers are malformed gets an empty list with a notice instead of an error.
func (s *MatchingService) Matches(ctx context.Context, userID string) (*MatchList, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":  "get_matches",
		"service":    "matching",
		"profile_id": userID,
	})

	now := s.clock.Now()
	if !s.gate.IsUnlocked(now) {
		return nil, errors.NewResultsLockedError(s.gate.Unlock(), s.gate.TimeRemaining(now).String())
	}

	entry, cached, err := s.results(ctx, userID)
	if err != nil {
		if invalid, ok := errors.AsAppError(err); ok && invalid.Code == errors.CodeProfileDataInvalid {
			logger.WithError(err).Warn("Viewer profile cannot be scored")
			return &MatchList{
				Matches:    []MatchView{},
				Notice:     &Notice{Code: invalid.Code, Message: invalid.Message},
				ComputedAt: now,
			}, nil
		}
		return nil, err
	}

	views := make([]MatchView, 0, len(entry.Results))
	for _, r := range entry.Results {
		p, err := s.profiles.GetByID(ctx, r.CandidateID)
		if err != nil {
			if stderrors.Is(err, database.ErrNotFound) {
				continue
			}
			return nil, errors.NewDatabaseError("get match profile", err)
		}
		view := MatchView{
			ProfileID:    p.ID,
			Alias:        p.Alias,
			ScorePercent: r.Percent(),
			Note:         p.Note,
		}
		if p.ShareContact {
			view.ContactHandle = p.ContactHandle
		}
		views = append(views, view)
	}

	return &MatchList{Matches: views, ComputedAt: entry.ComputedAt, Cached: cached}, nil
}

// IsMatched reports whether otherID is in userID's match list. A missing or
// unscorable userID has no matches.
func (s *MatchingService) IsMatched(ctx context.Context, userID, otherID string) (bool, error) {
	entry, _, err := s.results(ctx, userID)
	if err != nil {
		if errors.IsCode(err, errors.CodeProfileDataInvalid) || errors.IsCode(err, errors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, r := range entry.Results {
		if r.CandidateID == otherID {
			return true, nil
		}
	}
	return false, nil
}

// results loads the viewer's ranked ids from cache or computes them
func (s *MatchingService) results(ctx context.Context, userID string) (*cachedMatches, bool, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":  "compute_matches",
		"service":    "matching",
		"profile_id": userID,
	})

	var entry cachedMatches
	err := s.cache.GetMatches(ctx, userID, &entry)
	switch {
	case err == nil:
		s.metrics.RecordCacheOperation("get_matches", "hit")
		return &entry, true, nil
	case stderrors.Is(err, cache.ErrNotFound):
		s.metrics.RecordCacheOperation("get_matches", "miss")
	default:
		s.metrics.RecordCacheOperation("get_matches", "error")
		logger.WithError(err).Warn("Match cache unavailable, computing directly")
	}

	viewer, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			return nil, false, errors.NewNotFoundError("profile")
		}
		return nil, false, errors.NewDatabaseError("get profile", err)
	}
	pool, err := s.profiles.ListAll(ctx)
	if err != nil {
		return nil, false, errors.NewDatabaseError("list profiles", err)
	}

	start := time.Now()
	selection, err := matching.Select(candidate(viewer), candidates(pool), s.policy)
	if err != nil {
		return nil, false, errors.NewProfileDataInvalidError(err)
	}
	s.metrics.RecordMatchComputation(len(pool), len(selection.Results), time.Since(start))
	if len(selection.Skipped) > 0 {
		logger.WithField("skipped", selection.Skipped).Warn("Skipped candidates with malformed answers")
	}

	entry = cachedMatches{Results: selection.Results, ComputedAt: s.clock.Now().UTC()}
	if err := s.cache.SetMatches(ctx, userID, entry); err != nil {
		s.metrics.RecordCacheOperation("set_matches", "error")
		logger.WithError(err).Warn("Failed to cache matches")
	} else {
		s.metrics.RecordCacheOperation("set_matches", "ok")
	}

	logger.WithFields(map[string]interface{}{
		"considered": selection.Considered,
		"matches":    len(selection.Results),
	}).Info("Matches computed")
	return &entry, false, nil
}

func candidate(p *database.Profile) matching.Candidate {
	return matching.Candidate{
		ID:      p.ID,
		Gender:  matching.Gender(p.Gender),
		Vectors: p.Vectors(),
	}
}

func candidates(profiles []*database.Profile) []matching.Candidate {
	out := make([]matching.Candidate, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, candidate(p))
	}
	return out
}
