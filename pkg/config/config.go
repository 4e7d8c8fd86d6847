package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App      AppConfig
	Store    StoreConfig
	DB       DBConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Checkout CheckoutConfig
	Payment  PaymentConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, err
	}
	if cfg.Store.UsesSQL() {
		cfg.DB.Driver = cfg.Store.Driver
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if cfg.Store.Driver == StoreDriverRedis && cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("either %s or %s is required for the redis store", EnvRedisURL, EnvRedisAddress)
	}
	if cfg.App.IsProd() && cfg.Backend.ProdURL == "" {
		return nil, fmt.Errorf("%s is required when %s=%s", EnvBackendProdURL, EnvAppEnv, AppEnvProd)
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StoreConfig selects the durable key-value backend for session state.
type StoreConfig struct {
	Driver    string        `envconfig:"STOREFRONT_STORE_DRIVER" default:"redis"`
	Namespace string        `envconfig:"STOREFRONT_STORE_NAMESPACE" default:"sf"`
	DraftTTL  time.Duration `envconfig:"STOREFRONT_STORE_DRAFT_TTL" default:"72h"`
}

func (s StoreConfig) UsesSQL() bool {
	return s.Driver == StoreDriverPostgres || s.Driver == StoreDriverSQLite
}

func (s *StoreConfig) validate() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case StoreDriverRedis, StoreDriverPostgres, StoreDriverSQLite, StoreDriverMemory:
		return nil
	default:
		return fmt.Errorf("%s must be one of redis, postgres, sqlite, memory (got %q)", EnvStoreDriver, s.Driver)
	}
}

type DBConfig struct {
	DSN         string `envconfig:"STOREFRONT_DB_DSN"`
	Driver      string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`
	AutoMigrate bool   `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BackendConfig points at the commerce REST API. The base URL is chosen by
// the application environment.
type BackendConfig struct {
	DevURL  string        `envconfig:"STOREFRONT_BACKEND_DEV_URL" default:"http://localhost:5000/api/v1"`
	ProdURL string        `envconfig:"STOREFRONT_BACKEND_PROD_URL"`
	Timeout time.Duration `envconfig:"STOREFRONT_BACKEND_TIMEOUT" default:"15s"`
}

func (b BackendConfig) BaseURL(app AppConfig) string {
	if app.IsProd() {
		return strings.TrimRight(b.ProdURL, "/")
	}
	return strings.TrimRight(b.DevURL, "/")
}

type CheckoutConfig struct {
	FallbackShippingCost int64 `envconfig:"STOREFRONT_CHECKOUT_FALLBACK_SHIPPING_COST" default:"15000"`
	FallbackMinDays      int   `envconfig:"STOREFRONT_CHECKOUT_FALLBACK_MIN_DAYS" default:"3"`
	FallbackMaxDays      int   `envconfig:"STOREFRONT_CHECKOUT_FALLBACK_MAX_DAYS" default:"5"`

	FlatShippingEstimate  int64  `envconfig:"STOREFRONT_CHECKOUT_FLAT_SHIPPING_ESTIMATE" default:"15000"`
	FreeShippingThreshold int64  `envconfig:"STOREFRONT_CHECKOUT_FREE_SHIPPING_THRESHOLD" default:"200000"`
	TaxRate               string `envconfig:"STOREFRONT_CHECKOUT_TAX_RATE" default:"0"`

	SubmitLockTTL  time.Duration `envconfig:"STOREFRONT_CHECKOUT_SUBMIT_LOCK_TTL" default:"60s"`
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`

	taxRate decimal.Decimal
}

// Tax returns the parsed tax rate applied to the review subtotal.
func (c CheckoutConfig) Tax() decimal.Decimal {
	return c.taxRate
}

func (c *CheckoutConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1)", EnvTaxRate)
	}
	if c.FallbackMinDays > c.FallbackMaxDays {
		return fmt.Errorf("fallback shipping day range is inverted (%d > %d)", c.FallbackMinDays, c.FallbackMaxDays)
	}
	c.taxRate = rate
	return nil
}

type PaymentConfig struct {
	Provider          string        `envconfig:"STOREFRONT_PAYMENT_PROVIDER" default:"wompi"`
	CardDebounce      time.Duration `envconfig:"STOREFRONT_PAYMENT_CARD_DEBOUNCE" default:"500ms"`
	NequiPollInterval time.Duration `envconfig:"STOREFRONT_PAYMENT_NEQUI_POLL_INTERVAL" default:"3s"`
	NequiMaxAttempts  int           `envconfig:"STOREFRONT_PAYMENT_NEQUI_MAX_ATTEMPTS" default:"20"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Driver == StoreDriverSQLite {
		db.DSN = "file:storefront.db?cache=shared"
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
