package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, ClientConfig{Addr: addr, MaxRetries: -1})
	require.Error(t, err)
}

func TestNewAcceptsURL(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("pw")

	c, err := New(context.Background(), ClientConfig{Addr: "redis://:pw@" + mr.Addr() + "/2"})
	require.NoError(t, err)
	defer c.Close()

	opts := c.Underlying().Options()
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "freightarb", opts.ClientName)
	require.NoError(t, c.Ping(context.Background()))
}

func TestOptions(t *testing.T) {
	opts, err := options(ClientConfig{Addr: "rediss://cache.internal:6380/1", DB: 3, PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.NotNil(t, opts.TLSConfig)

	opts, err = options(ClientConfig{Addr: "localhost:6379"})
	require.NoError(t, err)
	assert.Nil(t, opts.TLSConfig)
	assert.Zero(t, opts.DB)

	_, err = options(ClientConfig{Addr: "redis://[bad"})
	assert.Error(t, err)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys have their own window.
	ok, err = rl.Allow(ctx, "5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Entries older than the window fall out.
	now = now.Add(time.Minute + time.Second)
	ok, err = rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "freightarb:scan", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:freightarb:scan"))

	_, err = lm.Acquire(ctx, "freightarb:scan", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:freightarb:scan"))

	unlock2, err := lm.Acquire(ctx, "freightarb:scan", time.Minute)
	require.NoError(t, err)
	defer unlock2()
}

func TestLockExpiresWithTTL(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlock2, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// A stale unlock must not release the new holder's lock.
	unlock()
	assert.True(t, mr.Exists("lock:k"))
	unlock2()
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelOpportunities)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelOpportunities, []byte(`{"event":"analysis"}`)))
	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"event":"analysis"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSignalBusStreamRecent(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c, 100)
	ctx := context.Background()

	empty, err := bus.StreamRecent(ctx, domain.StreamScans, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamScans, []byte(p)))
	}

	got, err := bus.StreamRecent(ctx, domain.StreamScans, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", string(got[0]))
	assert.Equal(t, "b", string(got[1]))
}
