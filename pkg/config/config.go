package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Feed         FeedConfig
	Kafka        KafkaConfig
	AMQP         AMQPConfig
	Reconcile    ReconcileConfig
	Tenants      TenantsConfig
	Relay        RelayConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validateFeed(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NEWDELIVERY_APP_ENV" required:"true"`
	Port         string `envconfig:"NEWDELIVERY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"NEWDELIVERY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NEWDELIVERY_LOG_WARN_STACK" default:"false"`
	TimeZone     string `envconfig:"NEWDELIVERY_TIME_ZONE" default:"America/Sao_Paulo"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// Location resolves the business time zone used for day-granular windows.
func (a AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(a.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", name, err)
	}
	return loc, nil
}

type ServiceConfig struct {
	Kind string `envconfig:"NEWDELIVERY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NEWDELIVERY_DB_DSN"`
	Driver string `envconfig:"NEWDELIVERY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NEWDELIVERY_DB_HOST"`
	LegacyPort     int    `envconfig:"NEWDELIVERY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NEWDELIVERY_DB_USER"`
	LegacyPassword string `envconfig:"NEWDELIVERY_DB_PASSWORD"`
	LegacyName     string `envconfig:"NEWDELIVERY_DB_NAME"`
	LegacySSLMode  string `envconfig:"NEWDELIVERY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NEWDELIVERY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NEWDELIVERY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NEWDELIVERY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NEWDELIVERY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NEWDELIVERY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NEWDELIVERY_REDIS_ADDR"`
	Password     string        `envconfig:"NEWDELIVERY_REDIS_PASSWORD"`
	DB           int           `envconfig:"NEWDELIVERY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NEWDELIVERY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NEWDELIVERY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NEWDELIVERY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NEWDELIVERY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NEWDELIVERY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NEWDELIVERY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NEWDELIVERY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NEWDELIVERY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"NEWDELIVERY_AUTO_MIGRATE" default:"false"`
	// Developers may act on any tenant's admin view.
	DeveloperTenantBypass bool `envconfig:"NEWDELIVERY_DEVELOPER_TENANT_BYPASS" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"NEWDELIVERY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"NEWDELIVERY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"NEWDELIVERY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrderChangesTopic        string `envconfig:"NEWDELIVERY_PUBSUB_ORDER_CHANGES_TOPIC" default:"order-changes"`
	OrderChangesSubscription string `envconfig:"NEWDELIVERY_PUBSUB_ORDER_CHANGES_SUBSCRIPTION"`
}

// FeedConfig selects the broker the change feed listens on.
type FeedConfig struct {
	Driver       string `envconfig:"NEWDELIVERY_FEED_DRIVER" default:"postgres"`
	PGChannel    string `envconfig:"NEWDELIVERY_FEED_PG_CHANNEL" default:"order_changes"`
	RedisChannel string `envconfig:"NEWDELIVERY_FEED_REDIS_CHANNEL" default:"order_changes"`
	BufferSize   int    `envconfig:"NEWDELIVERY_FEED_BUFFER_SIZE" default:"64"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"NEWDELIVERY_KAFKA_BROKERS"`
	Topic   string   `envconfig:"NEWDELIVERY_KAFKA_TOPIC" default:"order-changes"`
	GroupID string   `envconfig:"NEWDELIVERY_KAFKA_GROUP_ID" default:"newdelivery-api"`
}

type AMQPConfig struct {
	URL      string `envconfig:"NEWDELIVERY_AMQP_URL"`
	Exchange string `envconfig:"NEWDELIVERY_AMQP_EXCHANGE" default:"order_changes"`
}

type ReconcileConfig struct {
	Debounce     time.Duration `envconfig:"NEWDELIVERY_RECONCILE_DEBOUNCE" default:"0s"`
	FetchTimeout time.Duration `envconfig:"NEWDELIVERY_RECONCILE_FETCH_TIMEOUT" default:"10s"`
	ViewIdleTTL  time.Duration `envconfig:"NEWDELIVERY_RECONCILE_VIEW_IDLE_TTL" default:"30m"`
	FreshWindow  time.Duration `envconfig:"NEWDELIVERY_RECONCILE_FRESH_WINDOW" default:"10s"`

	// Failed fetches are retried with doubling delays up to MaxRetryDelay.
	// Zero disables automatic retries; the view's refresh endpoint still works.
	RetryDelay    time.Duration `envconfig:"NEWDELIVERY_RECONCILE_RETRY_DELAY" default:"2s"`
	MaxRetryDelay time.Duration `envconfig:"NEWDELIVERY_RECONCILE_MAX_RETRY_DELAY" default:"30s"`
}

type TenantsConfig struct {
	CacheTTL time.Duration `envconfig:"NEWDELIVERY_TENANT_CACHE_TTL" default:"5m"`
}

type RelayConfig struct {
	Driver         string `envconfig:"NEWDELIVERY_RELAY_DRIVER" default:"redis"`
	BatchSize      int    `envconfig:"NEWDELIVERY_RELAY_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"NEWDELIVERY_RELAY_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"NEWDELIVERY_RELAY_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"NEWDELIVERY_CRON_INTERVAL" default:"1h"`
	EventsRetention time.Duration `envconfig:"NEWDELIVERY_CRON_EVENTS_RETENTION" default:"168h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

func (c *Config) validateFeed() error {
	driver := strings.ToLower(strings.TrimSpace(c.Feed.Driver))
	if !isKnownDriver(driver) {
		return fmt.Errorf("%s must be one of %s", EnvFeedDriver, strings.Join(FeedDrivers, ", "))
	}
	c.Feed.Driver = driver
	relay := strings.ToLower(strings.TrimSpace(c.Relay.Driver))
	if relay != FeedDriverMemory && !isKnownDriver(relay) {
		return fmt.Errorf("%s must be one of %s", EnvRelayDriver, strings.Join(FeedDrivers, ", "))
	}
	c.Relay.Driver = relay

	for _, d := range []string{driver, relay} {
		switch d {
		case FeedDriverPubSub:
			if c.GCP.ProjectID == "" {
				return fmt.Errorf("%s is required for the pubsub feed", EnvGCPProjectID)
			}
			if d == driver && c.PubSub.OrderChangesSubscription == "" {
				return fmt.Errorf("%s is required for the pubsub feed", EnvPubSubOrderChangesSub)
			}
		case FeedDriverKafka:
			if len(c.Kafka.Brokers) == 0 {
				return fmt.Errorf("%s is required for the kafka feed", EnvKafkaBrokers)
			}
		case FeedDriverAMQP:
			if c.AMQP.URL == "" {
				return fmt.Errorf("%s is required for the amqp feed", EnvAMQPURL)
			}
		}
	}
	return nil
}

func isKnownDriver(driver string) bool {
	for _, d := range FeedDrivers {
		if d == driver {
			return true
		}
	}
	return false
}
