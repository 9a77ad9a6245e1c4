package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Encryption EncryptionConfig
	Yodlee     YodleeConfig
	Sync       SyncConfig
	Scheduler  SchedulerConfig
	TLS        TLSConfig
	Firebase   FirebaseConfig
	LogoStore  LogoStoreConfig
	Trigger    TriggerConfig
	Telemetry  TelemetryConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type EncryptionConfig struct {
	Key string
}

type YodleeConfig struct {
	Enabled           bool
	ClientID          string
	Secret            string
	BaseURL           string
	FastLinkURL       string
	AdminLoginName    string
	RequestsPerSecond float64
	HTTPTimeout       time.Duration
}

type SyncConfig struct {
	MaxHistoryDays  int
	OverlapDays     int
	PacingDelay     time.Duration
	StaleAfter      time.Duration
	WebhookFallback string
	CategoryMapPath string
	MessagesPath    string
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TLSConfig struct {
	Enabled  bool
	CertPath string
	KeyPath  string
}

type FirebaseConfig struct {
	CredentialsFile string
}

type LogoStoreConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

type TriggerConfig struct {
	TokenSecret string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	yodleeRPS, err := getFloatEnv("YODLEE_REQUESTS_PER_SECOND", 5)
	if err != nil {
		return nil, err
	}
	yodleeTimeout, err := getDurationEnv("YODLEE_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	maxHistoryDays, err := getIntEnv("SYNC_MAX_HISTORY_DAYS", 90)
	if err != nil {
		return nil, err
	}
	overlapDays, err := getIntEnv("SYNC_OVERLAP_DAYS", 7)
	if err != nil {
		return nil, err
	}
	pacingDelay, err := getDurationEnv("SYNC_PACING_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	staleAfter, err := getDurationEnv("SYNC_STALE_AFTER", 2*time.Hour)
	if err != nil {
		return nil, err
	}

	schedulerWorkers, err := getIntEnv("SCHEDULER_WORKERS", 5)
	if err != nil {
		return nil, err
	}
	schedulerJobDelay, err := getDurationEnv("SCHEDULER_JOB_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	schedulerQueueSize, err := getIntEnv("SCHEDULER_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "ledgersync"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "ledgersync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Yodlee: YodleeConfig{
			Enabled:           getBoolEnv("ENABLE_YODLEE", false),
			ClientID:          getEnv("YODLEE_CLIENT_ID", ""),
			Secret:            getEnv("YODLEE_SECRET", ""),
			BaseURL:           getEnv("YODLEE_BASE", "https://sandbox.api.yodlee.com/ysl"),
			FastLinkURL:       getEnv("YODLEE_FASTLINK_URL", ""),
			AdminLoginName:    getEnv("ADMIN_LOGIN_NAME", ""),
			RequestsPerSecond: yodleeRPS,
			HTTPTimeout:       yodleeTimeout,
		},
		Sync: SyncConfig{
			MaxHistoryDays:  maxHistoryDays,
			OverlapDays:     overlapDays,
			PacingDelay:     pacingDelay,
			StaleAfter:      staleAfter,
			WebhookFallback: strings.ToLower(getEnv("WEBHOOK_FALLBACK", "all_active")),
			CategoryMapPath: getEnv("CATEGORY_MAP_PATH", ""),
			MessagesPath:    getEnv("MESSAGES_PATH", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", true),
			ScheduleTimes: splitList(getEnv("SCHEDULER_TIMES", "05:00,10:00,14:00,20:00")),
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		TLS: TLSConfig{
			Enabled:  getBoolEnv("TLS_ENABLED", false),
			CertPath: getEnv("TLS_CERT_PATH", ""),
			KeyPath:  getEnv("TLS_KEY_PATH", ""),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		LogoStore: LogoStoreConfig{
			Bucket:          getEnv("LOGO_STORE_BUCKET", ""),
			Endpoint:        getEnv("LOGO_STORE_ENDPOINT", ""),
			Region:          getEnv("LOGO_STORE_REGION", "auto"),
			AccessKeyID:     getEnv("LOGO_STORE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("LOGO_STORE_SECRET_ACCESS_KEY", ""),
			PublicBaseURL:   getEnv("LOGO_STORE_PUBLIC_BASE_URL", ""),
		},
		Trigger: TriggerConfig{
			TokenSecret: getEnv("TRIGGER_TOKEN_SECRET", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "ledgersync"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Encryption.Key == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(c.Encryption.Key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}

	if c.Yodlee.Enabled {
		if c.Yodlee.ClientID == "" {
			return fmt.Errorf("YODLEE_CLIENT_ID is required when ENABLE_YODLEE=true")
		}
		if c.Yodlee.Secret == "" {
			return fmt.Errorf("YODLEE_SECRET is required when ENABLE_YODLEE=true")
		}
	}

	if c.Sync.MaxHistoryDays <= 0 {
		return fmt.Errorf("SYNC_MAX_HISTORY_DAYS must be positive")
	}
	if c.Sync.OverlapDays < 0 {
		return fmt.Errorf("SYNC_OVERLAP_DAYS must not be negative")
	}
	switch c.Sync.WebhookFallback {
	case "all_active", "none":
	default:
		return fmt.Errorf("WEBHOOK_FALLBACK must be all_active or none, got %q", c.Sync.WebhookFallback)
	}

	if c.Scheduler.Enabled && len(c.Scheduler.ScheduleTimes) == 0 {
		return fmt.Errorf("SCHEDULER_TIMES is required when SCHEDULER_ENABLED=true")
	}

	if c.TLS.Enabled {
		if c.TLS.CertPath == "" {
			return fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if c.TLS.KeyPath == "" {
			return fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Addr returns the host:port the HTTP server listens on.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
