package changefeed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

// PostgresSource listens on the channel the orders trigger notifies.
type PostgresSource struct {
	dsn     string
	channel string
	logg    *logger.Logger
}

func NewPostgresSource(dsn, channel string, logg *logger.Logger) (*PostgresSource, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required for the change feed")
	}
	if channel == "" {
		return nil, fmt.Errorf("postgres channel required for the change feed")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &PostgresSource{dsn: dsn, channel: channel, logg: logg}, nil
}

func (s *PostgresSource) Name() string { return "postgres" }

// Run keeps a dedicated connection in LISTEN and reconnects on failure.
// Every reconnect after the first triggers a resync.
func (s *PostgresSource) Run(ctx context.Context, sink Sink) error {
	connected := false
	for {
		err := s.listen(ctx, sink, connected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		connected = true
		s.logg.Error(ctx, "postgres change feed interrupted", err)
		if err := wait(ctx, reconnectDelay); err != nil {
			return err
		}
	}
}

func (s *PostgresSource) listen(ctx context.Context, sink Sink, resync bool) error {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", s.channel, err)
	}
	if resync {
		sink.Resync()
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		sink.Deliver([]byte(n.Payload))
	}
}
