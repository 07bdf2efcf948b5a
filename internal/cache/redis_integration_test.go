package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/nitematch/nitematch/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) RedisConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	return RedisConfig{Host: host, Port: port, PoolSize: 5}
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	store, err := NewStore(ctx, startRedis(t), time.Minute)
	require.NoError(t, err)
	defer store.Close()

	t.Run("session lifecycle", func(t *testing.T) {
		session, err := identity.NewSession("user-1", time.Now(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.SaveSession(ctx, session))

		got, err := store.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.UserID)

		require.NoError(t, store.DeleteSession(ctx, session.ID))
		_, err = store.GetSession(ctx, session.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("session expires", func(t *testing.T) {
		session, err := identity.NewSession("user-2", time.Now(), 1500*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, store.SaveSession(ctx, session))

		time.Sleep(2 * time.Second)
		_, err = store.GetSession(ctx, session.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("match cache", func(t *testing.T) {
		require.NoError(t, store.SetMatches(ctx, "user-3", []string{"a", "b"}))
		var got []string
		require.NoError(t, store.GetMatches(ctx, "user-3", &got))
		assert.Equal(t, []string{"a", "b"}, got)
		assert.ErrorIs(t, store.GetMatches(ctx, "user-4", &got), ErrNotFound)
	})

	assert.NoError(t, store.Health(ctx))
}
