package changefeed

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

// AMQPSource binds an exclusive queue to the change fanout exchange.
type AMQPSource struct {
	url      string
	exchange string
	logg     *logger.Logger
}

func NewAMQPSource(url, exchange string, logg *logger.Logger) (*AMQPSource, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url required for the change feed")
	}
	if exchange == "" {
		return nil, fmt.Errorf("amqp exchange required for the change feed")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &AMQPSource{url: url, exchange: exchange, logg: logg}, nil
}

func (s *AMQPSource) Name() string { return "amqp" }

func (s *AMQPSource) Run(ctx context.Context, sink Sink) error {
	connected := false
	for {
		err := s.consume(ctx, sink, connected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		connected = true
		s.logg.Error(ctx, "amqp change feed interrupted", err)
		if err := wait(ctx, reconnectDelay); err != nil {
			return err
		}
	}
}

func (s *AMQPSource) consume(ctx context.Context, sink Sink, resync bool) error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, s.exchange); err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", s.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	if resync {
		sink.Resync()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp delivery channel closed")
			}
			sink.Deliver(d.Body)
		}
	}
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}
