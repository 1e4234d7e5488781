package personalize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu      sync.Mutex
	entries map[Key]Entry
	getErr  error
	putErr  error
	puts    int
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[Key]Entry)}
}

func (m *mapStore) Get(_ context.Context, key Key) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *mapStore) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[e.Key] = e
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testKey = Key{SubjectID: 7, ContentID: "chapter-1", Kind: KindPersonalize, Variant: "beginner", Language: "en"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func countingGen(calls *int32, text string) Generator {
	return func(context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return text, nil
	}
}

func TestGetOrGenerate_MissThenHit(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMapStore()
	c := NewCache(store, Options{Now: clock.Now}, discardLogger())

	var calls int32
	out, err := c.GetOrGenerate(ctx, testKey, countingGen(&calls, "simplified chapter"))
	require.NoError(t, err)
	assert.False(t, out.Hit)
	assert.Equal(t, "simplified chapter", out.Text)
	assert.EqualValues(t, 1, calls)

	stored := store.entries[testKey]
	assert.Equal(t, clock.Now(), stored.CreatedAt)
	assert.Equal(t, clock.Now().Add(DefaultTTL), stored.ExpiresAt)

	out, err = c.GetOrGenerate(ctx, testKey, countingGen(&calls, "other"))
	require.NoError(t, err)
	assert.True(t, out.Hit)
	assert.Equal(t, "simplified chapter", out.Text)
	assert.EqualValues(t, 1, calls)
}

func TestGetOrGenerate_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMapStore()
	c := NewCache(store, Options{TTL: time.Hour, Now: clock.Now}, discardLogger())

	var calls int32
	_, err := c.GetOrGenerate(ctx, testKey, countingGen(&calls, "v1"))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	out, err := c.GetOrGenerate(ctx, testKey, countingGen(&calls, "v2"))
	require.NoError(t, err)
	assert.True(t, out.Hit, "entry exactly at expires_at is still valid")
	assert.Equal(t, "v1", out.Text)

	clock.Advance(time.Second)
	out, err = c.GetOrGenerate(ctx, testKey, countingGen(&calls, "v2"))
	require.NoError(t, err)
	assert.False(t, out.Hit)
	assert.Equal(t, "v2", out.Text)
	assert.EqualValues(t, 2, calls)
	assert.Equal(t, "v2", store.entries[testKey].Text)
}

func TestGetOrGenerate_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := NewCache(newMapStore(), Options{}, discardLogger())

	var calls int32
	translated := testKey
	translated.Kind, translated.Variant, translated.Language = KindTranslate, "", "ur"

	_, err := c.GetOrGenerate(ctx, testKey, countingGen(&calls, "rewrite"))
	require.NoError(t, err)
	out, err := c.GetOrGenerate(ctx, translated, countingGen(&calls, "ترجمہ"))
	require.NoError(t, err)
	assert.False(t, out.Hit)
	assert.Equal(t, "ترجمہ", out.Text)
	assert.EqualValues(t, 2, calls)
}

func TestGetOrGenerate_Errors(t *testing.T) {
	ctx := context.Background()

	genErr := errors.New("model overloaded")
	store := newMapStore()
	c := NewCache(store, Options{}, discardLogger())
	_, err := c.GetOrGenerate(ctx, testKey, func(context.Context) (string, error) { return "", genErr })
	assert.ErrorIs(t, err, genErr)
	assert.Zero(t, store.puts)

	readErr := errors.New("connection refused")
	store = newMapStore()
	store.getErr = readErr
	c = NewCache(store, Options{}, discardLogger())
	var calls int32
	_, err = c.GetOrGenerate(ctx, testKey, countingGen(&calls, "x"))
	assert.ErrorIs(t, err, readErr)
	assert.Zero(t, calls)
}

func TestGetOrGenerate_PersistFailureIsReported(t *testing.T) {
	writeErr := errors.New("disk full")
	store := newMapStore()
	store.putErr = writeErr
	c := NewCache(store, Options{}, discardLogger())

	var calls int32
	out, err := c.GetOrGenerate(context.Background(), testKey, countingGen(&calls, "generated"))
	require.NoError(t, err)
	assert.Equal(t, "generated", out.Text)
	assert.ErrorIs(t, out.PersistErr, writeErr)
}

func TestGetOrGenerate_SingleFlight(t *testing.T) {
	c := NewCache(newMapStore(), Options{SingleFlight: true}, discardLogger())

	var calls int32
	release := make(chan struct{})
	gen := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const callers = 8
	var started, wg sync.WaitGroup
	started.Add(callers)
	wg.Add(callers)
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			started.Done()
			out, err := c.GetOrGenerate(context.Background(), testKey, gen)
			assert.NoError(t, err)
			results[i] = out.Text
		}(i)
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
}

func TestGetOrGenerate_SingleFlightSurvivesLeaderCancel(t *testing.T) {
	store := newMapStore()
	c := NewCache(store, Options{SingleFlight: true}, discardLogger())

	entered := make(chan struct{})
	release := make(chan struct{})
	gen := func(ctx context.Context) (string, error) {
		close(entered)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "shared", nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrGenerate(leaderCtx, testKey, gen)
		leaderErr <- err
	}()
	<-entered

	follower := make(chan Outcome, 1)
	go func() {
		out, err := c.GetOrGenerate(context.Background(), testKey, gen)
		assert.NoError(t, err)
		follower <- out
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the shared generation")
	}

	close(release)
	out := <-follower
	assert.Equal(t, "shared", out.Text)

	entry, err := store.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "shared", entry.Text)
}
