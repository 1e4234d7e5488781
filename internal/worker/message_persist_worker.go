package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"bookplatform/internal/model"
	"bookplatform/internal/platform/rabbitmq"
)

// errUndecodable marks deliveries that can never be persisted.
var errUndecodable = errors.New("undecodable message")

// MessageSink is implemented by repository.MessageRepository.
type MessageSink interface {
	Create(ctx context.Context, message *model.Message) error
}

// MessagePersistWorker writes chat messages published by the chat service.
type MessagePersistWorker struct {
	conn      *amqp.Connection
	sink      MessageSink
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, sink MessageSink, queueName string, logger *slog.Logger) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:      conn,
		sink:      sink,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("message persist deliveries closed")
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *MessagePersistWorker) handle(ctx context.Context, d amqp.Delivery) {
	err := w.persist(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errUndecodable):
		w.logger.Error("drop undecodable chat message", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
	default:
		// retry once through the broker, then drop
		requeue := !d.Redelivered
		w.logger.Error("persist chat message failed", "message_id", d.MessageId, "requeue", requeue, "error", err)
		_ = d.Nack(false, requeue)
	}
}

func (w *MessagePersistWorker) persist(ctx context.Context, body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	if msg.SessionID == 0 || msg.Role == "" {
		return fmt.Errorf("%w: missing session or role", errUndecodable)
	}
	return w.sink.Create(ctx, &msg)
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
