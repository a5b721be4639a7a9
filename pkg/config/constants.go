package config

const (
	EnvPrefix = "SCENTMARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "SCENTMARKET_APP_ENV"
	EnvPort     = "SCENTMARKET_APP_PORT"
	EnvLogLevel = "SCENTMARKET_LOG_LEVEL"

	EnvDBDSN  = "SCENTMARKET_DB_DSN"
	EnvDBHost = "SCENTMARKET_DB_HOST"
	EnvDBUser = "SCENTMARKET_DB_USER"
	EnvDBName = "SCENTMARKET_DB_NAME"

	EnvUseSQLite  = "SCENTMARKET_USE_SQLITE"
	EnvSQLitePath = "SCENTMARKET_SQLITE_PATH"

	EnvRedisURL = "SCENTMARKET_REDIS_URL"

	EnvJWTSecret  = "SCENTMARKET_JWT_SECRET"
	EnvJWTIssuer  = "SCENTMARKET_JWT_ISSUER"
	EnvJWTExpMins = "SCENTMARKET_JWT_EXPIRATION_MINUTES"

	EnvCheckoutLockTimeout  = "SCENTMARKET_CHECKOUT_LOCK_TIMEOUT"
	EnvCheckoutMaxLineItems = "SCENTMARKET_CHECKOUT_MAX_LINE_ITEMS"
	EnvCheckoutRateLimit    = "SCENTMARKET_CHECKOUT_RATE_LIMIT_PER_MINUTE"

	EnvGCPProjectID      = "SCENTMARKET_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "SCENTMARKET_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub   = "SCENTMARKET_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvOutboxMaxAttempts = "SCENTMARKET_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxBatchSize   = "SCENTMARKET_OUTBOX_PUBLISH_BATCH_SIZE"

	EnvCronInterval        = "SCENTMARKET_CRON_INTERVAL"
	EnvCronOutboxRetention = "SCENTMARKET_CRON_OUTBOX_RETENTION_DAYS"
	EnvCronDLQRetention    = "SCENTMARKET_CRON_DLQ_RETENTION_DAYS"
)
