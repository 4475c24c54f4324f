package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Swish         SwishConfig         `mapstructure:"swish"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	CallbackPath      string        `mapstructure:"callback_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	Docs              DocsConfig    `mapstructure:"docs"`
}

// SwishConfig mirrors swish.Config so the internal package stays free of the
// client import.
type SwishConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	ServerIP    string            `mapstructure:"server_ip"`
	PayeeAlias  string            `mapstructure:"payee_alias"`
	CallbackURL string            `mapstructure:"callback_url"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Certificate CertificateConfig `mapstructure:"certificate"`
}

type CertificateConfig struct {
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	P12File    string `mapstructure:"p12_file"`
	Passphrase string `mapstructure:"passphrase"`
	CAFile     string `mapstructure:"ca_file"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type DocsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Endpoint     string  `mapstructure:"endpoint"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- DEFAULTS -----------------

func DefaultConfig() Config {
	return Config{
		Env: "development",
		Server: ServerConfig{
			Port:              8080,
			CallbackPath:      "/swish/callback",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			IdleTimeout:       60 * time.Second,
			WriteTimeout:      10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			Docs:              DocsConfig{Enabled: true},
		},
		Swish: SwishConfig{
			Endpoint: "https://mss.cpc.getswish.net/swish-cpcapi/api/v1",
			Timeout:  30 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
			Tracing: TracingConfig{ServiceName: "swish-payments", SamplingRate: 1},
			Logging: LoggingConfig{Level: "info", Format: "text"},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// LoadConfigFromEnv reads the container deployment variables on top of the defaults.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()

	cfg.Env = getEnv("APP_ENV", cfg.Env)

	cfg.Server.Port = getEnvAsInt("HTTP_PORT", cfg.Server.Port)
	cfg.Server.CallbackPath = getEnv("HTTP_CALLBACK_PATH", cfg.Server.CallbackPath)
	cfg.Server.ReadHeaderTimeout = getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", cfg.Server.ReadHeaderTimeout)
	cfg.Server.ReadTimeout = getEnvAsDuration("HTTP_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.IdleTimeout = getEnvAsDuration("HTTP_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.WriteTimeout = getEnvAsDuration("HTTP_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.Docs.Enabled = getEnvAsBool("HTTP_DOCS_ENABLED", cfg.Server.Docs.Enabled)

	cfg.Swish.Endpoint = getEnv("SWISH_ENDPOINT", cfg.Swish.Endpoint)
	cfg.Swish.ServerIP = getEnv("SWISH_SERVER_IP", cfg.Swish.ServerIP)
	cfg.Swish.PayeeAlias = getEnv("SWISH_PAYEE_ALIAS", cfg.Swish.PayeeAlias)
	cfg.Swish.CallbackURL = getEnv("SWISH_CALLBACK_URL", cfg.Swish.CallbackURL)
	cfg.Swish.Timeout = getEnvAsDuration("SWISH_TIMEOUT", cfg.Swish.Timeout)
	cfg.Swish.Certificate.CertFile = getEnv("SWISH_CERT_FILE", "")
	cfg.Swish.Certificate.KeyFile = getEnv("SWISH_KEY_FILE", "")
	cfg.Swish.Certificate.P12File = getEnv("SWISH_P12_FILE", "")
	cfg.Swish.Certificate.Passphrase = getEnv("SWISH_CERT_PASSPHRASE", "")
	cfg.Swish.Certificate.CAFile = getEnv("SWISH_CA_FILE", "")

	cfg.Observability.Metrics.Enabled = getEnvAsBool("METRICS_ENABLED", cfg.Observability.Metrics.Enabled)
	cfg.Observability.Metrics.Path = getEnv("METRICS_PATH", cfg.Observability.Metrics.Path)
	cfg.Observability.Tracing.Enabled = getEnvAsBool("TRACING_ENABLED", cfg.Observability.Tracing.Enabled)
	cfg.Observability.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Observability.Tracing.ServiceName)
	cfg.Observability.Tracing.SamplingRate = getEnvAsFloat("TRACING_SAMPLING_RATE", cfg.Observability.Tracing.SamplingRate)
	cfg.Observability.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.Tracing.Endpoint)
	cfg.Observability.Logging.Level = getEnv("LOG_LEVEL", cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = getEnv("LOG_FORMAT", cfg.Observability.Logging.Format)

	return &cfg
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Swish.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("swish config: %v", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("observability config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if !strings.HasPrefix(c.CallbackPath, "/") {
		return errors.New("callback_path must start with /")
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

// Validate checks presence only; addresses and certificate files are checked
// when the client is built.
func (c *SwishConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

func (c *ObservabilityConfig) Validate() error {
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics path must start with /")
	}
	if c.Tracing.Enabled && c.Tracing.ServiceName == "" {
		return errors.New("tracing service_name is required when tracing is enabled")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return errors.New("tracing sampling_rate must be between 0 and 1")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
