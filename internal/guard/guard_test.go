package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mariovalmir/chatwoot/internal/cache"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct{}

func (failingBackend) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("unreachable")
}
func (failingBackend) Delete(context.Context, string) error { return errors.New("unreachable") }
func (failingBackend) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, errors.New("unreachable")
}

func TestDedupeMarker(t *testing.T) {
	ctx := context.Background()
	marker := NewDedupeMarker(cache.NewMemory())

	ok, err := marker.TryAcquire(ctx, 1, "ABC")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = marker.TryAcquire(ctx, 1, "ABC")
	require.NoError(t, err)
	assert.False(t, ok, "second delivery must see the marker")

	require.NoError(t, marker.Release(ctx, 1, "ABC"))
	ok, err = marker.TryAcquire(ctx, 1, "ABC")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDedupeMarker_KeyFormat(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	marker := NewDedupeMarker(mem)

	_, err := marker.TryAcquire(ctx, 1, "XYZ")
	require.NoError(t, err)

	_, found, err := mem.Get(ctx, "MESSAGE_SOURCE_KEY::1:XYZ")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDedupeMarker_InboxesDoNotShareMarkers(t *testing.T) {
	ctx := context.Background()
	marker := NewDedupeMarker(cache.NewMemory())

	ok, err := marker.TryAcquire(ctx, 1, "3EB0C9")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = marker.TryAcquire(ctx, 2, "3EB0C9")
	require.NoError(t, err)
	assert.True(t, ok, "the other end of the conversation is a different inbox")

	ok, err = marker.TryAcquire(ctx, 1, "3EB0C9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDedupeMarker_BackendError(t *testing.T) {
	marker := NewDedupeMarker(failingBackend{})
	ok, err := marker.TryAcquire(context.Background(), 1, "ABC")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, marker.Release(context.Background(), 1, "ABC"))
}

func TestDedupeMarker_ConcurrentAcquireHasOneWinner(t *testing.T) {
	ctx := context.Background()
	marker := NewDedupeMarker(cache.NewMemory())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := marker.TryAcquire(ctx, 1, "same"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testLockers() map[string]ChannelLocker {
	return map[string]ChannelLocker{
		"keyed mutex": NewKeyedMutex(),
		"lease":       &LeaseLocker{backend: cache.NewMemory(), ttl: 5 * time.Second, poll: time.Millisecond},
	}
}

func TestChannelLocker_Serializes(t *testing.T) {
	for name, locker := range testLockers() {
		t.Run(name, func(t *testing.T) {
			var active, maxActive atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := locker.WithLock(context.Background(), 7, func(context.Context) error {
						n := active.Add(1)
						for {
							m := maxActive.Load()
							if n <= m || maxActive.CompareAndSwap(m, n) {
								break
							}
						}
						time.Sleep(2 * time.Millisecond)
						active.Add(-1)
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), maxActive.Load())
		})
	}
}

func TestChannelLocker_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	for name, locker := range testLockers() {
		t.Run(name, func(t *testing.T) {
			err := locker.WithLock(context.Background(), 1, func(context.Context) error { return boom })
			assert.ErrorIs(t, err, boom)

			// The lock is free again afterwards.
			err = locker.WithLock(context.Background(), 1, func(context.Context) error { return nil })
			assert.NoError(t, err)
		})
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := NewKeyedMutex()
	require.NoError(t, k.WithLock(context.Background(), 3, func(context.Context) error { return nil }))
	assert.Empty(t, k.locks)
}

func TestLeaseLocker_TimesOut(t *testing.T) {
	mem := cache.NewMemory()
	_, err := mem.SetNX(context.Background(), "EVOLUTION_CHANNEL_LOCK::9", "someone-else", time.Minute)
	require.NoError(t, err)

	locker := &LeaseLocker{backend: mem, ttl: 20 * time.Millisecond, poll: time.Millisecond}
	called := false
	err = locker.WithLock(context.Background(), 9, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)
}

func TestLeaseLocker_DoesNotReleaseForeignLease(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	locker := &LeaseLocker{backend: mem, ttl: time.Second, poll: time.Millisecond}

	err := locker.WithLock(ctx, 4, func(context.Context) error {
		// Simulate lease expiry and takeover by another process.
		require.NoError(t, mem.Set(ctx, "EVOLUTION_CHANNEL_LOCK::4", "other", time.Minute))
		return nil
	})
	require.NoError(t, err)

	v, found, _ := mem.Get(ctx, "EVOLUTION_CHANNEL_LOCK::4")
	assert.True(t, found)
	assert.Equal(t, "other", v)
}

// releaseFailingBackend grants leases but cannot release them.
type releaseFailingBackend struct {
	*cache.Memory
}

func (releaseFailingBackend) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestLeaseLocker_LogsReleaseFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	locker := NewLeaseLocker(releaseFailingBackend{cache.NewMemory()}, logger)

	err := locker.WithLock(context.Background(), 5, func(context.Context) error { return nil })
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, int64(5), entry.Data["channel_id"])
}
