package config

// EnvPrefix is empty because every field tag already carries the full name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "NEWDELIVERY_APP_ENV"
	EnvPort         = "NEWDELIVERY_APP_PORT"
	EnvTimeZone     = "NEWDELIVERY_TIME_ZONE"
	EnvDBDSN        = "NEWDELIVERY_DB_DSN"
	EnvDBHost       = "NEWDELIVERY_DB_HOST"
	EnvDBUser       = "NEWDELIVERY_DB_USER"
	EnvDBName       = "NEWDELIVERY_DB_NAME"
	EnvRedisURL     = "NEWDELIVERY_REDIS_URL"
	EnvJWTSecret    = "NEWDELIVERY_JWT_SECRET"
	EnvJWTIssuer    = "NEWDELIVERY_JWT_ISSUER"
	EnvGCPProjectID = "NEWDELIVERY_GCP_PROJECT_ID"

	EnvPubSubOrderChangesSub = "NEWDELIVERY_PUBSUB_ORDER_CHANGES_SUBSCRIPTION"
	EnvFeedDriver            = "NEWDELIVERY_FEED_DRIVER"
	EnvRelayDriver           = "NEWDELIVERY_RELAY_DRIVER"
	EnvKafkaBrokers          = "NEWDELIVERY_KAFKA_BROKERS"
	EnvAMQPURL               = "NEWDELIVERY_AMQP_URL"
	EnvReconcileDebounce     = "NEWDELIVERY_RECONCILE_DEBOUNCE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const (
	FeedDriverMemory   = "memory"
	FeedDriverPostgres = "postgres"
	FeedDriverRedis    = "redis"
	FeedDriverPubSub   = "pubsub"
	FeedDriverKafka    = "kafka"
	FeedDriverAMQP     = "amqp"
)

var FeedDrivers = []string{
	FeedDriverMemory,
	FeedDriverPostgres,
	FeedDriverRedis,
	FeedDriverPubSub,
	FeedDriverKafka,
	FeedDriverAMQP,
}
