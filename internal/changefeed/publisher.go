package changefeed

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

// Publisher pushes envelopes onto a broker for the API instances' sources.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes on a pub/sub channel.
type RedisPublisher struct {
	client  redisPublisher
	channel string
}

func NewRedisPublisher(client redisPublisher, channel string) (*RedisPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		return nil, fmt.Errorf("redis channel required")
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload)
}

func (p *RedisPublisher) Close() error { return nil }

// PubSubPublisher publishes on the order change topic.
type PubSubPublisher struct {
	publisher *pubsub.Publisher
}

func NewPubSubPublisher(publisher *pubsub.Publisher) (*PubSubPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &PubSubPublisher{publisher: publisher}, nil
}

func (p *PubSubPublisher) Name() string { return "pubsub" }

func (p *PubSubPublisher) Publish(ctx context.Context, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	res := p.publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind":     env.Kind,
			"order_id": env.OrderID.String(),
		},
	})
	_, err = res.Get(ctx)
	return err
}

func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return nil
}

// KafkaPublisher writes envelopes keyed by order id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}, nil
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.OrderID.String()),
		Value: payload,
	})
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// AMQPPublisher publishes on the fanout exchange every API instance binds to.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if url == "" || exchange == "" {
		return nil, fmt.Errorf("amqp url and exchange required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Name() string { return "amqp" }

func (p *AMQPPublisher) Publish(ctx context.Context, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   env.OrderID.String(),
		Timestamp:   env.OccurredAt,
		Body:        payload,
	})
}

func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// PostgresPublisher re-notifies through pg_notify. Used when the trigger's
// own notify is disabled and the relay owns delivery.
type PostgresPublisher struct {
	db      *gorm.DB
	channel string
}

func NewPostgresPublisher(db *gorm.DB, channel string) (*PostgresPublisher, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if channel == "" {
		return nil, fmt.Errorf("postgres channel required")
	}
	return &PostgresPublisher{db: db, channel: channel}, nil
}

func (p *PostgresPublisher) Name() string { return "postgres" }

func (p *PostgresPublisher) Publish(ctx context.Context, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", p.channel, string(payload)).Error
}

func (p *PostgresPublisher) Close() error { return nil }

// MemoryPublisher feeds a MemorySource in the same process.
type MemoryPublisher struct {
	source *MemorySource
}

func NewMemoryPublisher(source *MemorySource) *MemoryPublisher {
	return &MemoryPublisher{source: source}
}

func (p *MemoryPublisher) Name() string { return "memory" }

func (p *MemoryPublisher) Publish(_ context.Context, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	if !p.source.Push(payload) {
		return fmt.Errorf("memory feed buffer full")
	}
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }
