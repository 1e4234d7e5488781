// Package personalize memoizes LLM-derived variants of chapter content
// (personalized rewrites, translations) per reader.
package personalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 30 * 24 * time.Hour

const (
	KindPersonalize = "personalize"
	KindTranslate   = "translate"
)

// ErrNotFound is returned by a Store that holds no entry for a key.
var ErrNotFound = errors.New("personalized content not found")

// Key identifies one cached variant. Kind separates personalized rewrites
// from translations; Variant is the experience level for rewrites and empty
// for translations.
type Key struct {
	SubjectID uint
	ContentID string
	Kind      string
	Variant   string
	Language  string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s:%s:%s:%s", k.SubjectID, k.ContentID, k.Kind, k.Variant, k.Language)
}

type Entry struct {
	Key       Key
	Text      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired treats now == ExpiresAt as still valid.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Store persists entries. Put overwrites any entry under the same key.
type Store interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Put(ctx context.Context, entry Entry) error
}

// Generator produces the text on a cache miss.
type Generator func(ctx context.Context) (string, error)

// Outcome reports how a request was served. PersistErr is set when the
// generated text could not be stored; the text is still valid.
type Outcome struct {
	Text       string
	Hit        bool
	PersistErr error
}

type Options struct {
	TTL time.Duration
	// SingleFlight collapses concurrent misses on one key into a single
	// generation.
	SingleFlight bool
	Now          func() time.Time
}

type Cache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	group  *singleflight.Group
	logger *slog.Logger
}

func NewCache(store Store, opts Options, logger *slog.Logger) *Cache {
	c := &Cache{store: store, ttl: opts.TTL, now: opts.Now, logger: logger}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.SingleFlight {
		c.group = &singleflight.Group{}
	}
	return c
}

// GetOrGenerate returns the cached text for key, or calls gen and stores its
// result. Read errors from the store and generator errors are returned.
func (c *Cache) GetOrGenerate(ctx context.Context, key Key, gen Generator) (Outcome, error) {
	entry, err := c.store.Get(ctx, key)
	switch {
	case err == nil && !entry.Expired(c.now()):
		return Outcome{Text: entry.Text, Hit: true}, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return Outcome{}, fmt.Errorf("read personalized content failed: %w", err)
	}

	if c.group == nil {
		return c.generate(ctx, key, gen)
	}
	// The shared generation outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		return c.generate(context.WithoutCancel(ctx), key, gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Outcome{}, res.Err
		}
		return res.Val.(Outcome), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (c *Cache) generate(ctx context.Context, key Key, gen Generator) (Outcome, error) {
	text, err := gen(ctx)
	if err != nil {
		return Outcome{}, err
	}

	now := c.now()
	out := Outcome{Text: text}
	if err := c.store.Put(ctx, Entry{Key: key, Text: text, CreatedAt: now, ExpiresAt: now.Add(c.ttl)}); err != nil {
		c.logger.Warn("store personalized content failed", "key", key.String(), "error", err)
		out.PersistErr = err
	}
	return out, nil
}
