package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestCacheSeenDuplicate(t *testing.T) {
	cache := NewCache(10, time.Minute)
	require.False(t, cache.IsSeen("alpha"))
	cache.MarkSeen("alpha")
	require.True(t, cache.IsSeen("alpha"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheTTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	cache := newCache(10, time.Minute, clock.now)

	cache.MarkSeen("beta")
	clock.advance(59 * time.Second)
	require.True(t, cache.IsSeen("beta"))

	clock.advance(2 * time.Second)
	require.False(t, cache.IsSeen("beta"))

	cache.MarkSeen("gamma")
	require.Equal(t, 1, cache.Len())
}

func TestCacheMarkRefreshesTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	cache := newCache(10, time.Minute, clock.now)

	cache.MarkSeen("delta")
	clock.advance(50 * time.Second)
	cache.MarkSeen("delta")
	clock.advance(50 * time.Second)

	require.True(t, cache.IsSeen("delta"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := NewCache(2, time.Minute)
	cache.MarkSeen("first")
	cache.MarkSeen("second")
	cache.MarkSeen("third")

	require.False(t, cache.IsSeen("first"))
	require.True(t, cache.IsSeen("second"))
	require.True(t, cache.IsSeen("third"))
	require.Equal(t, 2, cache.Len())
}

func TestCacheDefaults(t *testing.T) {
	cache := NewCache(0, 0)
	cache.MarkSeen("a")
	cache.MarkSeen("b")
	require.False(t, cache.IsSeen("a"))
	require.True(t, cache.IsSeen("b"))
}
