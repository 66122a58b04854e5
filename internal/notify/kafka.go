package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

var (
	ErrInboxFull = errors.New("notification inbox is full")
	ErrClosed    = errors.New("notifier is closed")
)

// MessageWriter — часть kafka.Writer, которая нужна нотификатору
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope — формат события в топике уведомлений
type Envelope struct {
	EventID     string    `json:"event_id"`
	RecipientID int64     `json:"recipient_id"`
	Text        string    `json:"text"`
	Payload     *Payload  `json:"payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewKafkaWriter создаёт асинхронный writer с ключом-хешем по получателю
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
	}
}

// KafkaNotifier публикует уведомления в Kafka через ограниченный буфер.
// Notify не блокируется: при переполненном буфере сообщение отбрасывается с ошибкой.
type KafkaNotifier struct {
	log   *slog.Logger
	w     MessageWriter
	inbox chan kafka.Message
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewKafkaNotifier(log *slog.Logger, w MessageWriter, buf int) *KafkaNotifier {
	if buf <= 0 {
		buf = 1
	}
	return &KafkaNotifier{
		log:   log,
		w:     w,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start запускает цикл отправки. Цикл завершается после Close, дописав остаток буфера.
func (n *KafkaNotifier) Start() {
	go func() {
		defer close(n.done)
		for m := range n.inbox {
			if err := n.w.WriteMessages(context.Background(), m); err != nil {
				n.log.Error("failed to publish notification",
					slog.String("op", "notify.KafkaNotifier.loop"),
					slog.String("key", string(m.Key)),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := n.w.Close(); err != nil {
			n.log.Error("failed to close kafka writer", slog.String("error", err.Error()))
		}
	}()
}

func (n *KafkaNotifier) Notify(_ context.Context, recipientID int64, text string, payload *Payload) error {
	value, err := json.Marshal(Envelope{
		EventID:     uuid.NewString(),
		RecipientID: recipientID,
		Text:        text,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(recipientID, 10)),
		Value: value,
		Time:  time.Now(),
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}
	select {
	case n.inbox <- msg:
		return nil
	default:
		return ErrInboxFull
	}
}

// Close закрывает буфер и ждёт, пока цикл отправки допишет сообщения.
func (n *KafkaNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.inbox)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
