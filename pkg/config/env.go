package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "STOREFRONT_APP_ENV"
	EnvPort        = "STOREFRONT_APP_PORT"
	EnvLogLevel    = "STOREFRONT_LOG_LEVEL"
	EnvCORSOrigins = "STOREFRONT_CORS_ORIGINS"

	EnvStoreDriver  = "STOREFRONT_STORE_DRIVER"
	EnvDBDSN        = "STOREFRONT_DB_DSN"
	EnvDBDriver     = "STOREFRONT_DB_DRIVER"
	EnvDBHost       = "STOREFRONT_DB_HOST"
	EnvDBUser       = "STOREFRONT_DB_USER"
	EnvDBName       = "STOREFRONT_DB_NAME"
	EnvAutoMigrate  = "STOREFRONT_AUTO_MIGRATE"
	EnvRedisURL     = "STOREFRONT_REDIS_URL"
	EnvRedisAddress = "STOREFRONT_REDIS_ADDR"

	EnvBackendDevURL  = "STOREFRONT_BACKEND_DEV_URL"
	EnvBackendProdURL = "STOREFRONT_BACKEND_PROD_URL"
	EnvBackendTimeout = "STOREFRONT_BACKEND_TIMEOUT"

	EnvFallbackShippingCost = "STOREFRONT_CHECKOUT_FALLBACK_SHIPPING_COST"
	EnvFreeShippingFrom     = "STOREFRONT_CHECKOUT_FREE_SHIPPING_THRESHOLD"
	EnvTaxRate              = "STOREFRONT_CHECKOUT_TAX_RATE"
	EnvCardDebounce         = "STOREFRONT_PAYMENT_CARD_DEBOUNCE"
	EnvNequiPollInterval    = "STOREFRONT_PAYMENT_NEQUI_POLL_INTERVAL"
	EnvNequiMaxAttempts     = "STOREFRONT_PAYMENT_NEQUI_MAX_ATTEMPTS"
)

const (
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
