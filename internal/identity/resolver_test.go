package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mariovalmir/chatwoot/internal/payload"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) ResolveOpaqueIdentity(ctx context.Context, lid string) (string, error) {
	args := m.Called(ctx, lid)
	return args.String(0), args.Error(1)
}

func (m *mockLookup) GroupSubject(ctx context.Context, groupJID string) (string, error) {
	args := m.Called(ctx, groupJID)
	return args.String(0), args.Error(1)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

const lid = "123456789012345@lid"

func TestResolvePrimary_PlainPassesThrough(t *testing.T) {
	lookup := &mockLookup{}
	r := NewResolver(1, newMemCache(), lookup, quietLogger())

	got := r.ResolvePrimary(context.Background(), "5511999887766@s.whatsapp.net", "999@c.us")

	assert.Equal(t, "5511999887766@s.whatsapp.net", got)
	lookup.AssertNotCalled(t, "ResolveOpaqueIdentity", mock.Anything, mock.Anything)
}

func TestResolvePrimary_FallbackWins(t *testing.T) {
	r := NewResolver(1, newMemCache(), nil, quietLogger())

	got := r.ResolvePrimary(context.Background(), lid, "", "5511999887766")

	assert.Equal(t, "5511999887766@s.whatsapp.net", got)
}

func TestResolvePrimary_CachePrecedesProvider(t *testing.T) {
	cache := newMemCache()
	lookup := &mockLookup{}
	r := NewResolver(7, cache, lookup, quietLogger())
	cache.data[fmt.Sprintf("wa:evo:lid_msisdn:7:%s", lid)] = "5511999887766"

	got := r.ResolvePrimary(context.Background(), lid)

	assert.Equal(t, "5511999887766@s.whatsapp.net", got)
	lookup.AssertNotCalled(t, "ResolveOpaqueIdentity", mock.Anything, mock.Anything)
}

func TestResolvePrimary_ProviderStoresMapping(t *testing.T) {
	cache := newMemCache()
	lookup := &mockLookup{}
	lookup.On("ResolveOpaqueIdentity", mock.Anything, lid).Return("5511999887766@c.us", nil).Once()
	r := NewResolver(7, cache, lookup, quietLogger())

	got := r.ResolvePrimary(context.Background(), lid)

	assert.Equal(t, "5511999887766@s.whatsapp.net", got)
	key := "wa:evo:lid_msisdn:7:" + lid
	assert.Equal(t, "5511999887766", cache.data[key])
	assert.Equal(t, 30*24*time.Hour, cache.ttls[key])

	// Second resolution is served from the cache.
	assert.Equal(t, "5511999887766@s.whatsapp.net", r.ResolvePrimary(context.Background(), lid))
	lookup.AssertExpectations(t)
}

func TestResolvePrimary_TotalFailureKeepsOpaqueID(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("ResolveOpaqueIdentity", mock.Anything, lid).Return("", errors.New("timeout"))
	r := NewResolver(1, newMemCache(), lookup, quietLogger())

	assert.Equal(t, lid, r.ResolvePrimary(context.Background(), lid))
	assert.Equal(t, "", r.ResolvePrimary(context.Background(), ""))
}

func TestResolvePrimary_GroupIsNeverLookedUp(t *testing.T) {
	cache := newMemCache()
	cache.data["wa:evo:lid_msisdn:1:120363025@g.us"] = "5511000000000"
	lookup := &mockLookup{}
	r := NewResolver(1, cache, lookup, quietLogger())

	assert.Equal(t, "120363025@g.us", r.ResolvePrimary(context.Background(), "120363025@g.us"))
	assert.Equal(t, "120363025@g.us", r.ResolvePrimary(context.Background(), "120363025@g.us", "120363099@g.us"))
	lookup.AssertNotCalled(t, "ResolveOpaqueIdentity", mock.Anything, mock.Anything)
}

func TestResolvePrimary_GroupFallbacksAreSkipped(t *testing.T) {
	lookup := &mockLookup{}
	r := NewResolver(1, newMemCache(), lookup, quietLogger())

	got := r.ResolvePrimary(context.Background(), lid, "120363099@g.us", "5511999887766@s.whatsapp.net")

	assert.Equal(t, "5511999887766@s.whatsapp.net", got)
	lookup.AssertNotCalled(t, "ResolveOpaqueIdentity", mock.Anything, mock.Anything)
}

func TestPhoneFromAnyJID(t *testing.T) {
	t.Run("plain user", func(t *testing.T) {
		r := NewResolver(1, newMemCache(), nil, quietLogger())
		assert.Equal(t, "5511999887766", r.PhoneFromAnyJID(context.Background(), "5511999887766:12@s.whatsapp.net"))
	})

	t.Run("lid resolved through alt", func(t *testing.T) {
		cache := newMemCache()
		r := NewResolver(1, cache, nil, quietLogger())

		got := r.PhoneFromAnyJID(context.Background(), lid, "120363025@g.us", "5511999887766@s.whatsapp.net")

		assert.Equal(t, "5511999887766", got)
		assert.Equal(t, "5511999887766", cache.data["wa:evo:lid_msisdn:1:"+lid])
	})

	t.Run("lid resolved through another mapped lid", func(t *testing.T) {
		cache := newMemCache()
		cache.data["wa:evo:lid_msisdn:1:999@lid"] = "5511888"
		r := NewResolver(1, cache, nil, quietLogger())

		assert.Equal(t, "5511888", r.PhoneFromAnyJID(context.Background(), lid, "999@lid"))
		assert.Equal(t, "5511888", cache.data["wa:evo:lid_msisdn:1:"+lid])
	})

	t.Run("unresolved lid falls back to its digits", func(t *testing.T) {
		lookup := &mockLookup{}
		lookup.On("ResolveOpaqueIdentity", mock.Anything, lid).Return("", nil)
		r := NewResolver(1, newMemCache(), lookup, quietLogger())

		assert.Equal(t, "123456789012345", r.PhoneFromAnyJID(context.Background(), lid))
	})

	t.Run("lid without digits is returned unchanged", func(t *testing.T) {
		r := NewResolver(1, newMemCache(), nil, quietLogger())
		assert.Equal(t, "opaque@lid", r.PhoneFromAnyJID(context.Background(), "opaque@lid"))
	})

	t.Run("cache errors degrade to a miss", func(t *testing.T) {
		cache := newMemCache()
		cache.err = errors.New("redis down")
		r := NewResolver(1, cache, nil, quietLogger())

		assert.Equal(t, "5511999887766", r.PhoneFromAnyJID(context.Background(), lid, "5511999887766@c.us"))
	})
}

func TestContactSourceIDAndCandidates(t *testing.T) {
	cache := newMemCache()
	cache.data["wa:evo:lid_msisdn:1:"+lid] = "5511999887766"
	r := NewResolver(1, cache, nil, quietLogger())
	ctx := context.Background()

	assert.Equal(t, "120363025@g.us", r.ContactSourceID(ctx, "120363025@g.us"))
	assert.Equal(t, "5511999887766", r.ContactSourceID(ctx, lid))
	assert.Equal(t, "", r.ContactSourceID(ctx, ""))

	assert.Equal(t, []string{"120363025@g.us"}, r.CandidateSourceIDs(ctx, "120363025@g.us"))
	assert.Equal(t, []string{lid, "5511999887766"}, r.CandidateSourceIDs(ctx, lid))
	assert.Nil(t, r.CandidateSourceIDs(ctx, " "))
}

func TestCacheLIDIdentifiers(t *testing.T) {
	t.Run("plain variants are stored against every lid", func(t *testing.T) {
		cache := newMemCache()
		lookup := &mockLookup{}
		r := NewResolver(3, cache, lookup, quietLogger())

		r.CacheLIDIdentifiers(context.Background(), lid, "5511999887766@s.whatsapp.net", "777@lid", "120363025@g.us", "")

		assert.Equal(t, "5511999887766", cache.data["wa:evo:lid_msisdn:3:"+lid])
		assert.Equal(t, "5511999887766", cache.data["wa:evo:lid_msisdn:3:777@lid"])
		assert.Len(t, cache.data, 2)
		lookup.AssertNotCalled(t, "ResolveOpaqueIdentity", mock.Anything, mock.Anything)
	})

	t.Run("provider lookup without plain variants", func(t *testing.T) {
		cache := newMemCache()
		lookup := &mockLookup{}
		lookup.On("ResolveOpaqueIdentity", mock.Anything, lid).Return("5511999887766", nil).Once()
		r := NewResolver(3, cache, lookup, quietLogger())

		r.CacheLIDIdentifiers(context.Background(), lid)

		assert.Equal(t, "5511999887766", cache.data["wa:evo:lid_msisdn:3:"+lid])
		lookup.AssertExpectations(t)
	})

	t.Run("no lids is a no-op", func(t *testing.T) {
		cache := newMemCache()
		r := NewResolver(3, cache, nil, quietLogger())
		r.CacheLIDIdentifiers(context.Background(), "5511999887766@c.us")
		assert.Empty(t, cache.data)
	})
}

func TestFallbacks(t *testing.T) {
	p := payload.Payload{
		"remoteJidAlt": "5511@s.whatsapp.net",
		"key":          map[string]any{"participant": "5522@s.whatsapp.net"},
		"chatId":       "5533@c.us",
		"from":         "",
	}
	assert.Equal(t, []string{"5511@s.whatsapp.net", "5522@s.whatsapp.net", "5533@c.us"}, Fallbacks(p))
	assert.Nil(t, Fallbacks(nil))
}

func TestStoreMappingIgnoresNonLID(t *testing.T) {
	cache := newMemCache()
	r := NewResolver(1, cache, nil, quietLogger())
	ctx := context.Background()

	r.StoreMapping(ctx, "5511@c.us", "5511")
	r.StoreMapping(ctx, lid, "no digits")
	require.Empty(t, cache.data)
}
