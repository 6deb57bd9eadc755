package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"grocer/internal/logging"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 1024
	maxBatch         = 100
	deliveryTimeout  = 10 * time.Second
)

var (
	// ErrQueueFull is returned when the delivery queue has no room; the
	// event is dropped.
	ErrQueueFull = errors.New("kafka delivery queue is full")
	// ErrSinkClosed is returned by Send after Close.
	ErrSinkClosed = errors.New("kafka sink is closed")
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each message to the topic it names. Send only enqueues;
// a background loop delivers in batches, so callers never wait on brokers.
type KafkaSink struct {
	writer MessageWriter
	logger *zap.Logger
	queue  chan kafka.Message
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewKafkaSink starts delivery to writer. The writer must not have a fixed
// Topic. queueSize <= 0 picks a default.
func NewKafkaSink(writer MessageWriter, logger *zap.Logger, queueSize int) *KafkaSink {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &KafkaSink{
		writer: writer,
		logger: logging.OrNop(logger),
		queue:  make(chan kafka.Message, queueSize),
		done:   make(chan struct{}),
	}
	go s.deliver()
	return s
}

// NewKafkaWriter builds an async writer for brokers that routes by message
// topic. Delivery failures are logged.
func NewKafkaWriter(brokers []string, batchTimeout time.Duration, logger *zap.Logger) *kafka.Writer {
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	logger = logging.OrNop(logger)
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
}

func (s *KafkaSink) Send(ctx context.Context, topic, key string, payload []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		return fmt.Errorf("kafka enqueue %s: %w", topic, ErrQueueFull)
	}
}

func (s *KafkaSink) deliver() {
	defer close(s.done)
	for msg := range s.queue {
		batch := append(make([]kafka.Message, 0, maxBatch), msg)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-s.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := s.writer.WriteMessages(ctx, batch...); err != nil {
			logging.Warn(ctx, s.logger, "kafka write failed",
				zap.String("topic", batch[0].Topic),
				zap.Int("messages", len(batch)),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events, flushes what is queued and closes the
// writer. Calling it again only closes the writer again.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	return s.writer.Close()
}
