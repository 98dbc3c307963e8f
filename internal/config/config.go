package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	BackendRabbitMQ = "rabbitmq"
	BackendRedis    = "redis"

	TriggerEvent  = "event"
	TriggerInvoke = "invoke"
)

type Config struct {
	DatabaseDSN       string        `env:"DATABASE_DSN,required=true"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=2"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=1h"`
	RedisURL          string        `env:"REDIS_URL,required=true"`
	RabbitMQURL       string        `env:"RABBITMQ_URL"`

	MinioEndpoint   string `env:"MINIO_ENDPOINT,required=true"`
	MinioAccessKey  string `env:"MINIO_ACCESS_KEY,required=true"`
	MinioSecretKey  string `env:"MINIO_SECRET_KEY,required=true"`
	MinioUseSSL     bool   `env:"MINIO_USE_SSL,default=false"`
	ProjectBucket   string `env:"PROJECT_BUCKET,default=rtg-automotive-bucket"`
	StockFeedBucket string `env:"STOCK_FEED_BUCKET,default=rtg-automotive-stock-feed-bucket"`

	NotificationBackend string `env:"NOTIFICATION_BACKEND,default=rabbitmq"`
	NotificationQueue   string `env:"NOTIFICATION_QUEUE,default=rtg-automotive-lambda-queue"`
	EventBus            string `env:"EVENT_BUS,default=rtg-automotive-generate-ebay-table-lambda-event-bus"`
	GenerateTrigger     string `env:"GENERATE_TRIGGER,default=event"`
	GenerateFunctionURL string `env:"GENERATE_FUNCTION_URL"`

	UploadWaitPerFile time.Duration `env:"UPLOAD_WAIT_PER_FILE,default=4s"`
	PollInterval      time.Duration `env:"POLL_INTERVAL,default=10s"`
	PollMaxInterval   time.Duration `env:"POLL_MAX_INTERVAL,default=10s"`
	PollMaxWait       time.Duration `env:"POLL_MAX_WAIT,default=15m"`

	AdminUsername       string        `env:"ADMIN_USERNAME,required=true"`
	AdminPassword       string        `env:"ADMIN_PASSWORD,required=true"`
	LoginAttemptsPerMin int           `env:"LOGIN_ATTEMPTS_PER_MIN,default=5"`
	SessionTTL          time.Duration `env:"SESSION_TTL,default=8h"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	Stage    string `env:"STAGE,default=dev"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.NotificationBackend = strings.ToLower(strings.TrimSpace(cfg.NotificationBackend))
	cfg.GenerateTrigger = strings.ToLower(strings.TrimSpace(cfg.GenerateTrigger))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings that depend on each other.
func (c *Config) Validate() error {
	switch c.NotificationBackend {
	case BackendRabbitMQ, BackendRedis:
	default:
		return fmt.Errorf("NOTIFICATION_BACKEND must be %q or %q (got %q)", BackendRabbitMQ, BackendRedis, c.NotificationBackend)
	}

	switch c.GenerateTrigger {
	case TriggerEvent, TriggerInvoke:
	default:
		return fmt.Errorf("GENERATE_TRIGGER must be %q or %q (got %q)", TriggerEvent, TriggerInvoke, c.GenerateTrigger)
	}

	if c.NeedsRabbitMQ() && strings.TrimSpace(c.RabbitMQURL) == "" {
		return fmt.Errorf("RABBITMQ_URL is required for the configured notification backend or trigger")
	}
	if c.GenerateTrigger == TriggerInvoke && strings.TrimSpace(c.GenerateFunctionURL) == "" {
		return fmt.Errorf("GENERATE_FUNCTION_URL is required when GENERATE_TRIGGER=%s", TriggerInvoke)
	}
	if c.PollMaxWait <= 0 {
		return fmt.Errorf("POLL_MAX_WAIT must be positive")
	}
	return nil
}

func (c *Config) NeedsRabbitMQ() bool {
	return c.NotificationBackend == BackendRabbitMQ || c.GenerateTrigger == TriggerEvent
}
