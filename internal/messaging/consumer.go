package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

var consumerTracer = otel.Tracer("messaging/consumer")

// SaleHandler stores one sale event. Returning an error stops consumption
// without committing the message.
type SaleHandler func(ctx context.Context, ev domain.SaleEvent) error

type SaleConsumer struct {
	reader  *kafka.Reader
	topic   string
	groupID string
	logger  *slog.Logger
}

type ConsumerOption func(*kafka.ReaderConfig)

func WithStartOffset(offset int64) ConsumerOption {
	return func(cfg *kafka.ReaderConfig) {
		cfg.StartOffset = offset
	}
}

func NewSaleConsumer(brokers []string, topic, groupID string, logger *slog.Logger, opts ...ConsumerOption) *SaleConsumer {
	cfg := kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &SaleConsumer{
		reader:  kafka.NewReader(cfg),
		topic:   topic,
		groupID: groupID,
		logger:  logger,
	}
}

// Consume hands every sale event to handler until ctx is done. Messages
// that are not valid sale events are logged and skipped.
func (c *SaleConsumer) Consume(ctx context.Context, handler SaleHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.process(ctx, msg, handler); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *SaleConsumer) process(ctx context.Context, msg kafka.Message, handler SaleHandler) error {
	parent := otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&msg))

	ctx, span := consumerTracer.Start(parent, "process "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(c.topic),
			semconv.MessagingKafkaConsumerGroup(c.groupID),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
		),
	)
	defer span.End()

	var ev domain.SaleEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.ID == "" {
		c.logger.Warn("skipping malformed sale event", "error", err, "offset", msg.Offset, "partition", msg.Partition)
		return nil
	}

	if err := handler(ctx, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *SaleConsumer) Close() error {
	return c.reader.Close()
}
