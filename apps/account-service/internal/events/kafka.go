package events

import (
	"context"
	"errors"
	"time"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/kafka"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
	"go.uber.org/zap"
)

// DefaultTopic is the topic used when none is configured
const DefaultTopic = "auth.events"

// RecordProducer is satisfied by *kafka.Producer
type RecordProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, v interface{}, headers map[string]string) error
}

// RecordPoller is satisfied by *kafka.Consumer
type RecordPoller interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
}

// KafkaBus carries auth events over a Kafka topic keyed by user id
type KafkaBus struct {
	*Hub
	producer    RecordProducer
	poller      RecordPoller
	topic       string
	log         *logger.Logger
	pollBackoff time.Duration
}

// NewKafkaBus creates a new KafkaBus. Every instance reads the whole topic,
// so the consumer must not belong to a shared group.
func NewKafkaBus(producer RecordProducer, poller RecordPoller, topic string, log *logger.Logger) *KafkaBus {
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = logger.Get()
	}
	return &KafkaBus{
		Hub:         NewHub(),
		producer:    producer,
		poller:      poller,
		topic:       topic,
		log:         log,
		pollBackoff: time.Second,
	}
}

// Publish implements Publisher
func (b *KafkaBus) Publish(ctx context.Context, ev usersession.AuthEvent) error {
	w, err := toWire(ev)
	if err != nil {
		return err
	}
	return b.producer.ProduceJSON(ctx, b.topic, ev.UserID, w, map[string]string{"event": string(ev.Type)})
}

// Run polls the topic and dispatches until ctx is done or the consumer closes
func (b *KafkaBus) Run(ctx context.Context) error {
	b.log.Info("Consuming auth events", zap.String("backend", "kafka"), zap.String("topic", b.topic))
	for {
		records, err := b.poller.Poll(ctx)
		if err != nil {
			if errors.Is(err, kafka.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			b.log.Warn("Failed to poll auth events", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.pollBackoff):
			}
			continue
		}

		for _, rec := range records {
			ev, err := Decode(rec.Value)
			if err != nil {
				b.log.Warn("Dropping malformed auth event",
					zap.Int32("partition", rec.Partition),
					zap.Int64("offset", rec.Offset),
					zap.Error(err))
				continue
			}
			b.Dispatch(ev)
		}
	}
}
