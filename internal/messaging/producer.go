package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/doorpos/internal/domain"
)

var producerTracer = otel.Tracer("messaging/producer")

// StatusHeader carries the sale status so consumers can filter without
// decoding the payload.
const StatusHeader = "sale-status"

// SaleProducer publishes door sale outcomes. Messages are keyed by order id
// so every outcome for one order lands on the same partition.
type SaleProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewSaleProducer(brokers []string, topic string) *SaleProducer {
	return &SaleProducer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
	}
}

func (p *SaleProducer) PublishSale(ctx context.Context, ev domain.SaleEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal sale event: %w", err)
	}

	key := strconv.Itoa(ev.OrderID)
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: []kafka.Header{{Key: StatusHeader, Value: []byte(ev.Status)}},
	}

	ctx, span := producerTracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(key),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, NewHeaderCarrier(&msg))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write sale event: %w", err)
	}
	return nil
}

func (p *SaleProducer) Close() error {
	return p.writer.Close()
}
