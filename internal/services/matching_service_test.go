package services

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nitematch/nitematch/internal/cache"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/matching"
)

func openPolicy() matching.Policy {
	policy := matching.DefaultPolicy()
	policy.Threshold = 0
	return policy
}

func newMatchingService(profiles *MockProfileRepository, matchCache *MockMatchCache, now time.Time) *MatchingService {
	return NewMatchingService(profiles, matchCache, openPolicy(), testGate(), fixedClock(now), nil)
}

func TestMatchingService_LockedBeforeUnlock(t *testing.T) {
	profiles, matchCache := new(MockProfileRepository), new(MockMatchCache)

	_, err := newMatchingService(profiles, matchCache, unlockAt.Add(-90*time.Minute)).Matches(context.Background(), "u1")
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeResultsLocked, appErr.Code)
	assert.Equal(t, "00d 01h 30m 00s", appErr.Metadata["time_remaining"])
	matchCache.AssertNotCalled(t, "GetMatches", mock.Anything, mock.Anything, mock.Anything)
}

func TestMatchingService_ComputesAndCaches(t *testing.T) {
	ctx := context.Background()
	now := unlockAt.Add(time.Hour)

	viewer := storedProfile("m1", "male")
	match := storedProfile("f1", "female")
	match.ContactHandle = "@f1"
	match.ShareContact = true
	private := storedProfile("f2", "female")
	private.ContactHandle = "@f2"
	rival := storedProfile("m2", "male")

	profiles, matchCache := new(MockProfileRepository), new(MockMatchCache)
	matchCache.On("GetMatches", ctx, "m1", mock.Anything).Return(cache.ErrNotFound)
	matchCache.On("SetMatches", ctx, "m1", mock.AnythingOfType("services.cachedMatches")).Return(nil)
	profiles.On("GetByID", ctx, "m1").Return(viewer, nil)
	profiles.On("GetByID", ctx, "f1").Return(match, nil)
	profiles.On("GetByID", ctx, "f2").Return(private, nil)
	profiles.On("ListAll", ctx).Return([]*database.Profile{viewer, private, match, rival}, nil)

	list, err := newMatchingService(profiles, matchCache, now).Matches(ctx, "m1")
	require.NoError(t, err)

	require.Len(t, list.Matches, 2)
	assert.False(t, list.Cached)
	assert.Nil(t, list.Notice)
	// equal scores fall back to id order
	assert.Equal(t, "f1", list.Matches[0].ProfileID)
	assert.Equal(t, "@f1", list.Matches[0].ContactHandle)
	assert.Equal(t, "f2", list.Matches[1].ProfileID)
	assert.Empty(t, list.Matches[1].ContactHandle)
	assert.Equal(t, list.Matches[0].ScorePercent, list.Matches[1].ScorePercent)
	matchCache.AssertExpectations(t)
}

func TestMatchingService_CacheHitSkipsComputation(t *testing.T) {
	ctx := context.Background()
	now := unlockAt.Add(time.Hour)

	profiles, matchCache := new(MockProfileRepository), new(MockMatchCache)
	matchCache.On("GetMatches", ctx, "m1", mock.Anything).
		Run(func(args mock.Arguments) {
			dest := args.Get(2).(*cachedMatches)
			dest.Results = []matching.Result{{CandidateID: "f1", Score: 0.8}, {CandidateID: "gone", Score: 0.7}}
			dest.ComputedAt = unlockAt
		}).
		Return(nil)
	profiles.On("GetByID", ctx, "f1").Return(&database.Profile{ID: "f1", Alias: "fern", Note: "hi"}, nil)
	profiles.On("GetByID", ctx, "gone").Return(nil, database.ErrNotFound)

	list, err := newMatchingService(profiles, matchCache, now).Matches(ctx, "m1")
	require.NoError(t, err)

	assert.True(t, list.Cached)
	require.Len(t, list.Matches, 1)
	assert.Equal(t, "fern", list.Matches[0].Alias)
	assert.Equal(t, 80.0, list.Matches[0].ScorePercent)
	profiles.AssertNotCalled(t, "ListAll", mock.Anything)
}

func TestMatchingService_CacheErrorFallsBackToCompute(t *testing.T) {
	ctx := context.Background()
	viewer := storedProfile("m1", "male")

	profiles, matchCache := new(MockProfileRepository), new(MockMatchCache)
	matchCache.On("GetMatches", ctx, "m1", mock.Anything).Return(stderrors.New("redis down"))
	matchCache.On("SetMatches", ctx, "m1", mock.Anything).Return(stderrors.New("redis down"))
	profiles.On("GetByID", ctx, "m1").Return(viewer, nil)
	profiles.On("ListAll", ctx).Return([]*database.Profile{viewer}, nil)

	list, err := newMatchingService(profiles, matchCache, unlockAt).Matches(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, list.Matches)
	assert.NotNil(t, list.Matches)
}

func TestMatchingService_MalformedViewerGetsNotice(t *testing.T) {
	ctx := context.Background()
	viewer := storedProfile("m1", "male")
	viewer.Psych = viewer.Psych[:1]

	profiles, matchCache := new(MockProfileRepository), new(MockMatchCache)
	matchCache.On("GetMatches", ctx, "m1", mock.Anything).Return(cache.ErrNotFound)
	profiles.On("GetByID", ctx, "m1").Return(viewer, nil)
	profiles.On("ListAll", ctx).Return([]*database.Profile{viewer, storedProfile("f1", "female")}, nil)

	list, err := newMatchingService(profiles, matchCache, unlockAt).Matches(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, list.Notice)
	assert.Equal(t, errors.CodeProfileDataInvalid, list.Notice.Code)
	assert.Empty(t, list.Matches)
	matchCache.AssertNotCalled(t, "SetMatches", mock.Anything, mock.Anything, mock.Anything)
}

func TestMatchingService_IsMatched(t *testing.T) {
	ctx := context.Background()

	profiles, matchCache := new(MockProfileRepository), new(MockMatchCache)
	matchCache.On("GetMatches", ctx, "m1", mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).(*cachedMatches).Results = []matching.Result{{CandidateID: "f1", Score: 0.9}}
		}).
		Return(nil)
	svc := newMatchingService(profiles, matchCache, unlockAt)

	ok, err := svc.IsMatched(ctx, "m1", "f1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsMatched(ctx, "m1", "f9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchingService_DefaultPolicyMatchesTwinsWithoutInterests(t *testing.T) {
	ctx := context.Background()
	viewer, twin := storedProfile("m1", "male"), storedProfile("f1", "female")

	profiles, matchCache := new(MockProfileRepository), new(MockMatchCache)
	matchCache.On("GetMatches", ctx, "m1", mock.Anything).Return(cache.ErrNotFound)
	matchCache.On("SetMatches", ctx, "m1", mock.Anything).Return(nil)
	profiles.On("GetByID", ctx, "m1").Return(viewer, nil)
	profiles.On("GetByID", ctx, "f1").Return(twin, nil)
	profiles.On("ListAll", ctx).Return([]*database.Profile{viewer, twin}, nil)

	svc := NewMatchingService(profiles, matchCache, matching.DefaultPolicy(), testGate(), fixedClock(unlockAt), nil)
	list, err := svc.Matches(ctx, "m1")
	require.NoError(t, err)

	require.Len(t, list.Matches, 1)
	assert.Equal(t, 100.0, list.Matches[0].ScorePercent)
}

func TestMatchingService_IsMatchedUnknownViewer(t *testing.T) {
	ctx := context.Background()

	profiles, matchCache := new(MockProfileRepository), new(MockMatchCache)
	matchCache.On("GetMatches", ctx, "ghost", mock.Anything).Return(cache.ErrNotFound)
	profiles.On("GetByID", ctx, "ghost").Return(nil, database.ErrNotFound)

	ok, err := newMatchingService(profiles, matchCache, unlockAt).IsMatched(ctx, "ghost", "f1")
	require.NoError(t, err)
	assert.False(t, ok)
}
