// Package kafka wraps franz-go with the small producer/consumer surface the
// services share.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/retry"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrClosed is returned by Poll once the consumer has been closed
var ErrClosed = errors.New("kafka: client closed")

// Message is an outgoing record
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Record is a consumed record
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

func toKgo(msg *Message) *kgo.Record {
	rec := &kgo.Record{Topic: msg.Topic, Key: msg.Key, Value: msg.Value}
	for k, v := range msg.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return rec
}

func fromKgo(rec *kgo.Record) *Record {
	r := &Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
	}
	if len(rec.Headers) > 0 {
		r.Headers = make(map[string]string, len(rec.Headers))
		for _, h := range rec.Headers {
			r.Headers[h.Key] = string(h.Value)
		}
	}
	return r
}

func connect(ctx context.Context, opts []kgo.Opt, maxRetries int, interval time.Duration) (*kgo.Client, error) {
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	if interval <= 0 {
		interval = time.Second
	}
	if err := retry.Do(ctx, retry.Fixed(maxRetries, interval), client.Ping); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping kafka: %w", err)
	}
	return client, nil
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers       []string
	ClientID      string
	MaxRetries    int
	RetryInterval time.Duration
}

// Producer writes records synchronously
type Producer struct {
	client *kgo.Client
}

// NewProducer connects to the brokers and verifies them with a ping
func NewProducer(ctx context.Context, cfg *ProducerConfig) (*Producer, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	client, err := connect(ctx, []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
		kgo.AllowAutoTopicCreation(),
	}, cfg.MaxRetries, cfg.RetryInterval)
	if err != nil {
		return nil, err
	}
	return &Producer{client: client}, nil
}

// Produce writes msg and waits for the broker acknowledgement
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	if err := p.client.ProduceSync(ctx, toKgo(msg)).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", msg.Topic, err)
	}
	return nil
}

// ProduceJSON marshals v and writes it under key
func (p *Producer) ProduceJSON(ctx context.Context, topic, key string, v interface{}, headers map[string]string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.Produce(ctx, &Message{Topic: topic, Key: []byte(key), Value: data, Headers: headers})
}

// Close closes the client
func (p *Producer) Close() {
	p.client.Close()
}

// ConsumerConfig holds consumer configuration. Consumers do not join a
// group: each one reads every partition on its own, starting from the end
// of the log when StartAtEnd is set. Offsets are never committed.
type ConsumerConfig struct {
	Brokers       []string
	Topics        []string
	ClientID      string
	StartAtEnd    bool
	MaxRetries    int
	RetryInterval time.Duration
}

// Consumer polls records from the configured topics
type Consumer struct {
	client *kgo.Client
}

// NewConsumer connects to the brokers and starts consuming Topics
func NewConsumer(ctx context.Context, cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if len(cfg.Topics) == 0 {
		return nil, errors.New("kafka: no topics configured")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumeTopics(cfg.Topics...),
	}
	if cfg.StartAtEnd {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}

	client, err := connect(ctx, opts, cfg.MaxRetries, cfg.RetryInterval)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: client}, nil
}

// Poll blocks until records arrive or ctx is done
func (c *Consumer) Poll(ctx context.Context) ([]*Record, error) {
	fetches := c.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errs := fetches.Errors(); len(errs) > 0 {
		fe := errs[0]
		return nil, fmt.Errorf("fetch %s[%d]: %w", fe.Topic, fe.Partition, fe.Err)
	}

	var records []*Record
	fetches.EachRecord(func(rec *kgo.Record) {
		records = append(records, fromKgo(rec))
	})
	return records, nil
}

// Close closes the client
func (c *Consumer) Close() {
	c.client.Close()
}
