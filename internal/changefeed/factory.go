package changefeed

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/pkg/config"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
	"github.com/afonso-rickman/newdelivery/pkg/pubsub"
	"github.com/afonso-rickman/newdelivery/pkg/redis"
)

// Deps are the clients a driver may need. Only the selected driver's client
// has to be set.
type Deps struct {
	DB         *gorm.DB
	Redis      *redis.Client
	PubSub     *pubsub.Client
	Memory     *MemorySource
	Logger     *logger.Logger
	InstanceID string
}

// NewSource builds the feed source selected by cfg.Feed.Driver.
func NewSource(cfg *config.Config, deps Deps) (Source, error) {
	switch cfg.Feed.Driver {
	case config.FeedDriverMemory:
		if deps.Memory != nil {
			return deps.Memory, nil
		}
		return NewMemorySource(cfg.Feed.BufferSize), nil
	case config.FeedDriverPostgres:
		return NewPostgresSource(cfg.DB.DSN, cfg.Feed.PGChannel, deps.Logger)
	case config.FeedDriverRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("redis client required for the change feed")
		}
		return NewRedisSource(deps.Redis.Raw(), cfg.Feed.RedisChannel)
	case config.FeedDriverPubSub:
		if deps.PubSub == nil {
			return nil, fmt.Errorf("pubsub client required for the change feed")
		}
		return NewPubSubSource(deps.PubSub.OrderChangesSubscription())
	case config.FeedDriverKafka:
		return NewKafkaSource(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, deps.InstanceID)
	case config.FeedDriverAMQP:
		return NewAMQPSource(cfg.AMQP.URL, cfg.AMQP.Exchange, deps.Logger)
	default:
		return nil, fmt.Errorf("unknown feed driver %q", cfg.Feed.Driver)
	}
}

// NewPublisher builds the relay publisher selected by cfg.Relay.Driver.
func NewPublisher(cfg *config.Config, deps Deps) (Publisher, error) {
	switch cfg.Relay.Driver {
	case config.FeedDriverMemory:
		source := deps.Memory
		if source == nil {
			source = NewMemorySource(cfg.Feed.BufferSize)
		}
		return NewMemoryPublisher(source), nil
	case config.FeedDriverPostgres:
		return NewPostgresPublisher(deps.DB, cfg.Feed.PGChannel)
	case config.FeedDriverRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("redis client required for the relay")
		}
		return NewRedisPublisher(deps.Redis, cfg.Feed.RedisChannel)
	case config.FeedDriverPubSub:
		if deps.PubSub == nil {
			return nil, fmt.Errorf("pubsub client required for the relay")
		}
		return NewPubSubPublisher(deps.PubSub.OrderChangesPublisher())
	case config.FeedDriverKafka:
		return NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	case config.FeedDriverAMQP:
		return NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	default:
		return nil, fmt.Errorf("unknown relay driver %q", cfg.Relay.Driver)
	}
}
