package statuscache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheUpdateAndGet(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	err := cache.Update(ctx, "robot-1", map[string]interface{}{"battery": 80.0}, "session-1", time.Minute)
	require.NoError(t, err)

	record, err := cache.Get(ctx, "robot-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "robot-1", record.RobotID)
	require.Equal(t, "session-1", record.SessionID)

	online, err := cache.ListOnline(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"robot-1"}, online)

	health := cache.HealthCheck(ctx)
	require.Equal(t, int64(1), health.Hits)
	require.Equal(t, int64(1), health.Updates)
}

// TestMemoryCacheEntryExpiresAtTwiceTTL covers Testable Property #3:
// a read at now + 2T returns a miss.
func TestMemoryCacheEntryExpiresAtTwiceTTL(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	ttl := 10 * time.Millisecond
	require.NoError(t, cache.Update(ctx, "robot-2", map[string]interface{}{}, "", ttl))

	time.Sleep(2 * ttl)

	record, err := cache.Get(ctx, "robot-2")
	require.NoError(t, err)
	require.Nil(t, record)

	health := cache.HealthCheck(ctx)
	require.Equal(t, int64(1), health.Misses)
}

func TestMemoryCacheRemoveAndInvalidateSession(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	require.NoError(t, cache.Update(ctx, "robot-a", map[string]interface{}{}, "session-x", time.Minute))
	require.NoError(t, cache.Update(ctx, "robot-b", map[string]interface{}{}, "session-y", time.Minute))

	require.NoError(t, cache.InvalidateSession(ctx, "session-x"))

	online, err := cache.ListOnline(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"robot-b"}, online)

	require.NoError(t, cache.Remove(ctx, "robot-b"))
	online, err = cache.ListOnline(ctx)
	require.NoError(t, err)
	require.Empty(t, online)
}

func TestMemoryCacheListOnlineStatusesSingleRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	require.NoError(t, cache.Update(ctx, "robot-a", map[string]interface{}{"x": 1.0}, "", time.Minute))
	require.NoError(t, cache.Update(ctx, "robot-b", map[string]interface{}{"x": 2.0}, "", time.Minute))

	statuses, err := cache.ListOnlineStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
}
