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
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	Velocity     VelocityConfig
	Fraud        FraudConfig
	Blocklist    BlocklistConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Square       SquareConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Fraud.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

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
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens minted by the storefront auth service.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
}

// HTTPConfig controls the API edge: allowed browser origins and per-IP limits.
type HTTPConfig struct {
	AllowedOrigins    []string      `envconfig:"STOREFRONT_HTTP_ALLOWED_ORIGINS"`
	TrustedProxies    []string      `envconfig:"STOREFRONT_HTTP_TRUSTED_PROXIES"`
	RateLimitWindow   time.Duration `envconfig:"STOREFRONT_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP    int           `envconfig:"STOREFRONT_HTTP_RATE_LIMIT_PER_IP" default:"300"`
	CheckoutRateLimit int           `envconfig:"STOREFRONT_HTTP_CHECKOUT_RATE_LIMIT" default:"30"`
	ShutdownTimeout   time.Duration `envconfig:"STOREFRONT_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type FeatureFlagsConfig struct {
	UseSQLite      bool   `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate    bool   `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	PaymentGateway string `envconfig:"STOREFRONT_PAYMENT_GATEWAY" default:"manual"`
}

// CheckoutConfig bounds the lifetime of checkout sessions and the stock they hold.
type CheckoutConfig struct {
	SessionTTL          time.Duration `envconfig:"STOREFRONT_CHECKOUT_SESSION_TTL" default:"30m"`
	ReservationTTL      time.Duration `envconfig:"STOREFRONT_CHECKOUT_RESERVATION_TTL" default:"30m"`
	Currency            string        `envconfig:"STOREFRONT_CHECKOUT_CURRENCY" default:"USD"`
	ReviewAllowsPayment bool          `envconfig:"STOREFRONT_CHECKOUT_REVIEW_ALLOWS_PAYMENT" default:"true"`
}

// VelocityConfig holds the rolling window and per-type attempt limits.
type VelocityConfig struct {
	Window      time.Duration `envconfig:"STOREFRONT_VELOCITY_WINDOW" default:"24h"`
	IPLimit     int           `envconfig:"STOREFRONT_VELOCITY_IP_LIMIT" default:"10"`
	EmailLimit  int           `envconfig:"STOREFRONT_VELOCITY_EMAIL_LIMIT" default:"5"`
	CardLimit   int           `envconfig:"STOREFRONT_VELOCITY_CARD_LIMIT" default:"3"`
	UserLimit   int           `envconfig:"STOREFRONT_VELOCITY_USER_LIMIT" default:"10"`
	DeviceLimit int           `envconfig:"STOREFRONT_VELOCITY_DEVICE_LIMIT" default:"10"`
}

type FraudConfig struct {
	ReviewThreshold        int  `envconfig:"STOREFRONT_FRAUD_REVIEW_THRESHOLD" default:"30"`
	BlockThreshold         int  `envconfig:"STOREFRONT_FRAUD_BLOCK_THRESHOLD" default:"70"`
	VelocityExceededBlocks bool `envconfig:"STOREFRONT_FRAUD_VELOCITY_EXCEEDED_BLOCKS" default:"false"`
	HistoryMaxPoints       int  `envconfig:"STOREFRONT_FRAUD_HISTORY_MAX_POINTS" default:"30"`
	HistoryMinSamples      int  `envconfig:"STOREFRONT_FRAUD_HISTORY_MIN_SAMPLES" default:"3"`
}

func (f FraudConfig) validate() error {
	if f.ReviewThreshold <= 0 || f.BlockThreshold > 100 || f.ReviewThreshold >= f.BlockThreshold {
		return fmt.Errorf("fraud thresholds must satisfy 0 < review (%d) < block (%d) <= 100", f.ReviewThreshold, f.BlockThreshold)
	}
	return nil
}

type BlocklistConfig struct {
	CacheTTL time.Duration `envconfig:"STOREFRONT_BLOCKLIST_CACHE_TTL" default:"5m"`
}

type CronConfig struct {
	Interval    time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"1m"`
	LockTTL     time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"5m"`
	// MetricsAddr serves /metrics for the worker; empty disables the listener.
	MetricsAddr string `envconfig:"STOREFRONT_CRON_METRICS_ADDR" default:":9091"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"STOREFRONT_PUBSUB_DOMAIN_TOPIC" default:"storefront-domain-events"`
}

type SquareConfig struct {
	AccessToken  string `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	Env          string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
	LocationID   string `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
	// DelayCapture authorizes without capturing; the confirm endpoint settles.
	DelayCapture bool `envconfig:"STOREFRONT_SQUARE_DELAY_CAPTURE" default:"false"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
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
