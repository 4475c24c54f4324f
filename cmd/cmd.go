package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/swish-payments/internal"
	"github.com/frahmantamala/swish-payments/internal/swish"
	"github.com/frahmantamala/swish-payments/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "swish-payments",
	Short: "Swish payments",
	Long:  `Create, inspect and refund Swish payment requests and receive the gateway callbacks.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// Check if we're running in Docker environment
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		return cfg, nil
	}

	// Load configuration from file (development)
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		return cfg, nil
	}

	cfg := internal.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	return &cfg, nil
}

func setupLogger(cfg *internal.Config) *slog.Logger {
	return logger.Configure(logger.Options{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	})
}

func swishConfig(cfg internal.SwishConfig) swish.Config {
	return swish.Config{
		Endpoint: cfg.Endpoint,
		ServerIP: cfg.ServerIP,
		Timeout:  cfg.Timeout,
		Certificate: swish.CertificateConfig{
			CertFile:   cfg.Certificate.CertFile,
			KeyFile:    cfg.Certificate.KeyFile,
			P12File:    cfg.Certificate.P12File,
			Passphrase: cfg.Certificate.Passphrase,
			CAFile:     cfg.Certificate.CAFile,
		},
	}
}

func newSwishClient(cfg *internal.Config, lg *slog.Logger) (*swish.Client, error) {
	sc := swishConfig(cfg.Swish)
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return swish.NewClient(sc, lg)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "Directory holding config.yml")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(paymentCmd)
	rootCmd.AddCommand(refundCmd)
	rootCmd.AddCommand(eventCmd)
}
