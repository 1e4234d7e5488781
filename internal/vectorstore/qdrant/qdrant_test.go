package qdrant

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookplatform/internal/vectorstore"
)

type fakePoint struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// fakeQdrant serves the handful of REST endpoints the store uses.
type fakeQdrant struct {
	mu          sync.Mutex
	exists      bool
	size        int
	points      map[uint64]fakePoint
	order       []uint64
	createCalls int
	conflictPut bool
	apiKeySeen  string
	// holdCollectionGet, when set, stalls collection lookups until closed.
	holdCollectionGet chan struct{}
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{points: make(map[uint64]fakePoint)}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.holdCollectionGet != nil && r.Method == http.MethodGet && r.URL.Path == "/collections/book" {
		<-f.holdCollectionGet
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeySeen = r.Header.Get("api-key")

	path := strings.TrimPrefix(r.URL.Path, "/collections/book")
	switch {
	case path == "" && r.Method == http.MethodGet:
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points_count": len(f.points)}})
	case path == "" && r.Method == http.MethodPut:
		f.createCalls++
		if f.conflictPut {
			f.exists = true
			w.WriteHeader(http.StatusConflict)
			return
		}
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.exists = true
		f.size = body.Vectors.Size
		_, _ = w.Write([]byte(`{"result":true}`))
	case !f.exists:
		w.WriteHeader(http.StatusNotFound)
	case path == "/points" && r.Method == http.MethodPut:
		var body struct {
			Points []fakePoint `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			if _, ok := f.points[p.ID]; !ok {
				f.order = append(f.order, p.ID)
			}
			f.points[p.ID] = p
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case path == "/points/search":
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		type hit struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		}
		hits := make([]hit, 0, len(f.points))
		for _, id := range f.order {
			p, ok := f.points[id]
			if !ok {
				continue
			}
			hits = append(hits, hit{Score: cosine(body.Vector, p.Vector), Payload: p.Payload})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	case path == "/points/delete":
		var body struct {
			Points []uint64 `json:"points"`
			Filter *struct {
				Must []struct {
					Key   string `json:"key"`
					Match *struct {
						Value string `json:"value"`
					} `json:"match"`
					Range *struct {
						Gte float64 `json:"gte"`
					} `json:"range"`
				} `json:"must"`
			} `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, id := range body.Points {
			delete(f.points, id)
		}
		if body.Filter != nil {
			for id, p := range f.points {
				matches := true
				for _, cond := range body.Filter.Must {
					switch {
					case cond.Match != nil:
						matches = matches && p.Payload[cond.Key] == cond.Match.Value
					case cond.Range != nil:
						v, _ := p.Payload[cond.Key].(float64)
						matches = matches && v >= cond.Range.Gte
					}
				}
				if matches {
					delete(f.points, id)
				}
			}
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func newTestStore(t *testing.T, fake *fakeQdrant) *Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "book"})
}

func TestSearch_MissingCollectionIsEmpty(t *testing.T) {
	s := newTestStore(t, newFakeQdrant())

	results, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	n, err := s.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_CreatesCollectionOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeQdrant()
	s := newTestStore(t, fake)

	require.NoError(t, s.Upsert(ctx, "ch1.md#0", []float32{1, 0, 0}, vectorstore.Metadata{Source: "ch1.md", Text: "motors"}))
	require.NoError(t, s.Upsert(ctx, "ch1.md#1", []float32{0, 1, 0}, vectorstore.Metadata{Source: "ch1.md", Text: "sensors"}))

	assert.Equal(t, 1, fake.createCalls)
	assert.Equal(t, 3, fake.size)
	assert.Equal(t, "secret", fake.apiKeySeen)

	results, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ch1.md#0", results[0].ID)
	assert.Equal(t, "motors", results[0].Metadata.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpsert_ConflictOnCreateIsSuccess(t *testing.T) {
	fake := newFakeQdrant()
	fake.conflictPut = true
	s := newTestStore(t, fake)

	require.NoError(t, s.Upsert(context.Background(), "a", []float32{1, 1}, vectorstore.Metadata{}))
	assert.Equal(t, 1, fake.createCalls)
}

func TestUpsert_DimensionFixedByFirstWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeQdrant())

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 1}, vectorstore.Metadata{}))
	assert.ErrorIs(t, s.Upsert(ctx, "b", []float32{1, 1, 1}, vectorstore.Metadata{}), vectorstore.ErrDimensionMismatch)
	assert.ErrorIs(t, s.Upsert(ctx, "c", []float32{0, 0}, vectorstore.Metadata{}), vectorstore.ErrZeroVector)
}

func TestDelete_MissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeQdrant())
	require.NoError(t, s.Delete(ctx, "never-stored"))

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}, vectorstore.Metadata{}))
	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))

	results, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	s := New(Config{URL: srv.URL, Collection: "book"})

	_, err := s.Search(context.Background(), []float32{1}, 1)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestPointID_StableAndInRange(t *testing.T) {
	a := PointID("chapter-1.md#3")
	assert.Equal(t, a, PointID("chapter-1.md#3"))
	assert.NotEqual(t, a, PointID("chapter-1.md#4"))
	assert.Less(t, a, maxPointID)
}

func TestPruneSource_FiltersBySourceAndIndex(t *testing.T) {
	fake := newFakeQdrant()
	store := newTestStore(t, fake)
	ctx := context.Background()

	chunks := []struct {
		id     string
		source string
		index  int
	}{
		{"a.md#0", "a.md", 0},
		{"a.md#1", "a.md", 1},
		{"a.md#2", "a.md", 2},
		{"b.md#0", "b.md", 0},
	}
	for i, c := range chunks {
		require.NoError(t, store.Upsert(ctx, c.id, []float32{1, float32(i)}, vectorstore.Metadata{Source: c.source, ChunkIndex: c.index}))
	}

	require.NoError(t, store.PruneSource(ctx, "a.md", 1))
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := store.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	var ids []string
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.ElementsMatch(t, []string{"a.md#0", "b.md#0"}, ids)
}

func TestPruneSource_MissingCollectionIsNoop(t *testing.T) {
	store := newTestStore(t, newFakeQdrant())
	assert.NoError(t, store.PruneSource(context.Background(), "a.md", 0))
}

func TestSearch_NotBlockedByCollectionSetup(t *testing.T) {
	fake := newFakeQdrant()
	fake.holdCollectionGet = make(chan struct{})
	store := newTestStore(t, fake)
	release := sync.OnceFunc(func() { close(fake.holdCollectionGet) })
	t.Cleanup(release)
	ctx := context.Background()

	upserted := make(chan error, 1)
	go func() {
		upserted <- store.Upsert(ctx, "a.md#0", []float32{1, 0}, vectorstore.Metadata{Source: "a.md"})
	}()
	time.Sleep(50 * time.Millisecond)

	searched := make(chan error, 1)
	go func() {
		_, err := store.Search(ctx, []float32{1, 0}, 3)
		searched <- err
	}()
	select {
	case err := <-searched:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("search waited for the collection setup request")
	}

	release()
	require.NoError(t, <-upserted)
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
