package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookplatform/internal/model"
	"bookplatform/internal/platform/rabbitmq"
)

type recordingSink struct {
	saved []model.Message
	err   error
}

func (s *recordingSink) Create(_ context.Context, m *model.Message) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *m)
	return nil
}

func newTestWorker(sink MessageSink) *MessagePersistWorker {
	return NewMessagePersistWorker(nil, sink, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPersist_StoresPublishedMessage(t *testing.T) {
	sink := &recordingSink{}
	w := newTestWorker(sink)

	p, err := rabbitmq.NewPersistPublishing(model.Message{SessionID: 3, UserID: 1, Role: "user", Content: "What is ZMP?"})
	require.NoError(t, err)
	require.NoError(t, w.persist(context.Background(), p.Body))
	require.Len(t, sink.saved, 1)
	assert.Equal(t, "What is ZMP?", sink.saved[0].Content)
}

func TestPersist_RejectsBadPayloads(t *testing.T) {
	w := newTestWorker(&recordingSink{})

	assert.ErrorIs(t, w.persist(context.Background(), []byte("{")), errUndecodable)
	assert.ErrorIs(t, w.persist(context.Background(), []byte(`{"content":"orphan"}`)), errUndecodable)
}

func TestPersist_SinkErrorIsRetryable(t *testing.T) {
	dbErr := errors.New("deadlock")
	w := newTestWorker(&recordingSink{err: dbErr})

	err := w.persist(context.Background(), []byte(`{"session_id":1,"role":"user","content":"x"}`))
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, errUndecodable)
}
