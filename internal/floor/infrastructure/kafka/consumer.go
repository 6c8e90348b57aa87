package kafka

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkurbanov/lounge-ops/pkg/idempotency"
	"github.com/rkurbanov/lounge-ops/pkg/tracing"
)

// Notifier is what the consumer drives: it only signals "something changed",
// the monitor decides when and what to recompute.
type Notifier interface {
	Notify()
}

// Consumer tails the order change feed. Deliveries are deduplicated through
// Redis before they reach the monitor, so a redelivered message never causes
// an extra reconciliation signal.
type Consumer struct {
	log     *slog.Logger
	reader  *kafka.Reader
	monitor Notifier
	idem    *idempotency.Store
	tracer  trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, monitor Notifier, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:     log,
		reader:  r,
		monitor: monitor,
		idem:    idem,
		tracer:  otel.Tracer("floor-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			continue
		}
		if seen {
			c.log.Debug("duplicate delivery skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		_, span := c.tracer.Start(msgCtx, "FloorChangeNotification")
		c.log.Debug("order change received",
			"event_type", headerValue(msg.Headers, "event_type"),
			"order_id", string(msg.Key))
		c.monitor.Notify()
		span.End()

		_ = c.reader.CommitMessages(ctx, msg)
	}
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
