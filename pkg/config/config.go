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
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Payments     PaymentsConfig
	Receipts     ReceiptsConfig
	Dependencies DependenciesConfig
	Tracing      TracingConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Receipts.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRACKVAULT_APP_ENV" required:"true"`
	Port         string `envconfig:"TRACKVAULT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TRACKVAULT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRACKVAULT_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"TRACKVAULT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRACKVAULT_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers serve /metrics. Empty disables it.
	MetricsAddr string `envconfig:"TRACKVAULT_SERVICE_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRACKVAULT_DB_DSN"`
	Driver string `envconfig:"TRACKVAULT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TRACKVAULT_DB_HOST"`
	Port     int    `envconfig:"TRACKVAULT_DB_PORT" default:"5432"`
	User     string `envconfig:"TRACKVAULT_DB_USER"`
	Password string `envconfig:"TRACKVAULT_DB_PASSWORD"`
	Name     string `envconfig:"TRACKVAULT_DB_NAME"`
	SSLMode  string `envconfig:"TRACKVAULT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"TRACKVAULT_SQLITE_PATH" default:"trackvault.db"`

	MaxOpenConns    int           `envconfig:"TRACKVAULT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRACKVAULT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRACKVAULT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRACKVAULT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"TRACKVAULT_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
	LogQueries         bool          `envconfig:"TRACKVAULT_DB_LOG_QUERIES" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRACKVAULT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRACKVAULT_REDIS_ADDR"`
	Password     string        `envconfig:"TRACKVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRACKVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRACKVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRACKVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRACKVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRACKVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRACKVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification side of access tokens. Tokens are issued by the identity service.
type JWTConfig struct {
	Secret   string        `envconfig:"TRACKVAULT_JWT_SECRET" required:"true"`
	Issuer   string        `envconfig:"TRACKVAULT_JWT_ISSUER" required:"true"`
	Audience string        `envconfig:"TRACKVAULT_JWT_AUDIENCE"`
	Leeway   time.Duration `envconfig:"TRACKVAULT_JWT_LEEWAY" default:"30s"`
}

// RateLimitConfig throttles money-moving endpoints per user and per IP.
type RateLimitConfig struct {
	PurchaseWindow    time.Duration `envconfig:"TRACKVAULT_RATE_LIMIT_PURCHASE_WINDOW" default:"1m"`
	PurchaseUserLimit int           `envconfig:"TRACKVAULT_RATE_LIMIT_PURCHASE_USER_LIMIT" default:"20"`
	PurchaseIPLimit   int           `envconfig:"TRACKVAULT_RATE_LIMIT_PURCHASE_IP_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TRACKVAULT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TRACKVAULT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TRACKVAULT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	ConsumerLease        time.Duration `envconfig:"TRACKVAULT_EVENTING_CONSUMER_LEASE" default:"5m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TRACKVAULT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TRACKVAULT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TRACKVAULT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic             string `envconfig:"TRACKVAULT_PUBSUB_ORDERS_TOPIC" default:"tv-order-events"`
	PaymentsTopic           string `envconfig:"TRACKVAULT_PUBSUB_PAYMENTS_TOPIC" default:"tv-payment-events"`
	FulfillmentSubscription string `envconfig:"TRACKVAULT_PUBSUB_FULFILLMENT_SUBSCRIPTION" default:"tv-payment-events-fulfillment"`
	AnalyticsSubscription   string `envconfig:"TRACKVAULT_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"tv-payment-events-analytics"`
}

type BigQueryConfig struct {
	Dataset    string `envconfig:"TRACKVAULT_BIGQUERY_DATASET" default:"trackvault"`
	SalesTable string `envconfig:"TRACKVAULT_BIGQUERY_SALES_TABLE" default:"sales_events"`
	AutoCreate bool   `envconfig:"TRACKVAULT_BIGQUERY_AUTO_CREATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"TRACKVAULT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"TRACKVAULT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"TRACKVAULT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"TRACKVAULT_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	Retention      time.Duration `envconfig:"TRACKVAULT_OUTBOX_RETENTION" default:"720h"`
}

// PaymentsConfig drives the simulated gateway and the stale payment reaper.
type PaymentsConfig struct {
	DeclineCardPrefix    string        `envconfig:"TRACKVAULT_PAYMENTS_DECLINE_CARD_PREFIX" default:"4000"`
	SuccessProbability   float64       `envconfig:"TRACKVAULT_PAYMENTS_SUCCESS_PROBABILITY" default:"0.9"`
	GatewayMinLatency    time.Duration `envconfig:"TRACKVAULT_PAYMENTS_GATEWAY_MIN_LATENCY" default:"100ms"`
	GatewayMaxLatency    time.Duration `envconfig:"TRACKVAULT_PAYMENTS_GATEWAY_MAX_LATENCY" default:"500ms"`
	GatewayTimeout       time.Duration `envconfig:"TRACKVAULT_PAYMENTS_GATEWAY_TIMEOUT" default:"10s"`
	StaleProcessingAfter time.Duration `envconfig:"TRACKVAULT_PAYMENTS_STALE_PROCESSING_AFTER" default:"15m"`
}

func (p PaymentsConfig) validate() error {
	if p.SuccessProbability < 0 || p.SuccessProbability > 1 {
		return fmt.Errorf("%s must be between 0 and 1", EnvPaymentsSuccessProbability)
	}
	if p.GatewayMaxLatency < p.GatewayMinLatency {
		return fmt.Errorf("%s must not be lower than %s", EnvPaymentsGatewayMaxLatency, EnvPaymentsGatewayMinLatency)
	}
	return nil
}

type ReceiptsConfig struct {
	TaxRate      decimal.Decimal `envconfig:"TRACKVAULT_RECEIPTS_TAX_RATE" default:"0.10"`
	DiscountRate decimal.Decimal `envconfig:"TRACKVAULT_RECEIPTS_DISCOUNT_RATE" default:"0"`
	Currency     string          `envconfig:"TRACKVAULT_RECEIPTS_CURRENCY" default:"USD"`
}

func (r ReceiptsConfig) validate() error {
	one := decimal.NewFromInt(1)
	if r.TaxRate.IsNegative() || r.TaxRate.GreaterThan(one) {
		return fmt.Errorf("%s must be between 0 and 1", EnvReceiptsTaxRate)
	}
	if r.DiscountRate.IsNegative() || r.DiscountRate.GreaterThan(one) {
		return fmt.Errorf("%s must be between 0 and 1", EnvReceiptsDiscountRate)
	}
	return nil
}

// DependenciesConfig lists the collaborators reached over HTTP. Every outbound call is bounded by OutboundTimeout.
type DependenciesConfig struct {
	CatalogURL      string        `envconfig:"TRACKVAULT_CATALOG_URL" default:"http://catalog:8080"`
	ProfilesURL     string        `envconfig:"TRACKVAULT_PROFILES_URL" default:"http://users:8080"`
	PushURL         string        `envconfig:"TRACKVAULT_PUSH_URL" default:"http://push:8080"`
	EntitlementsURL string        `envconfig:"TRACKVAULT_ENTITLEMENTS_URL" default:"http://localhost:8080"`
	OutboundTimeout time.Duration `envconfig:"TRACKVAULT_OUTBOUND_TIMEOUT" default:"3s"`
	CatalogCacheTTL time.Duration `envconfig:"TRACKVAULT_CATALOG_CACHE_TTL" default:"10m"`
}

type TracingConfig struct {
	Exporter    string  `envconfig:"TRACKVAULT_TRACING_EXPORTER" default:"none"`
	Endpoint    string  `envconfig:"TRACKVAULT_TRACING_ENDPOINT" default:"localhost:4317"`
	SampleRatio float64 `envconfig:"TRACKVAULT_TRACING_SAMPLE_RATIO" default:"1"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"TRACKVAULT_CRON_INTERVAL" default:"1m"`
	LockTTL               time.Duration `envconfig:"TRACKVAULT_CRON_LOCK_TTL" default:"5m"`
	NotificationRetention time.Duration `envconfig:"TRACKVAULT_CRON_NOTIFICATION_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
