package cache

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"bookplatform/internal/personalize"
)

// PersonalizationStore is the redis backend of the personalization cache.
// Keys expire in redis just after ExpiresAt; the cache still checks expiry on read.
type PersonalizationStore struct {
	client *redisv9.Client
	now    func() time.Time
}

func NewPersonalizationStore(client *redisv9.Client) *PersonalizationStore {
	return &PersonalizationStore{client: client, now: time.Now}
}

type personalizationRecord struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *PersonalizationStore) Get(ctx context.Context, key personalize.Key) (*personalize.Entry, error) {
	var rec personalizationRecord
	found, err := getJSON(ctx, s.client, personalizationKey(key), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, personalize.ErrNotFound
	}
	return &personalize.Entry{Key: key, Text: rec.Text, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt}, nil
}

func (s *PersonalizationStore) Put(ctx context.Context, entry personalize.Entry) error {
	// one extra second so a read exactly at ExpiresAt still finds the key
	ttl := entry.ExpiresAt.Sub(s.now()) + time.Second
	if ttl <= 0 {
		return nil
	}
	return setJSON(ctx, s.client, personalizationKey(entry.Key), personalizationRecord{
		Text:      entry.Text,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	}, ttl)
}

func personalizationKey(k personalize.Key) string {
	return fmt.Sprintf("personalize:%d:%s:%s:%s:%s", k.SubjectID, k.ContentID, k.Kind, k.Variant, k.Language)
}
