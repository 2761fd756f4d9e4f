package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"olt-collector/internal/domain"
)

const (
	DefaultOLTConfigPath = "/config/olts.yaml"
	DefaultStoreTimeout  = 30 * time.Second
	DefaultMetricsListen = ":9108"
)

// Config is produced once at startup and handed to every component that needs it
type Config struct {
	DatabaseDSN      string
	DBMaxConns       int32
	OLTConfigPath    string
	StatusTablePath  string
	LogLevel         string
	LogJSON          bool
	StoreTimeout     time.Duration
	StaleAfterCycles int
	PollOnStart      bool
	MetricsListen    string
	Migrate          bool

	OLTs []domain.OLT
}

// Load reads the process settings from the environment and the OLT list from YAML.
// A variable that is set but cannot be parsed is an ErrConfig.
func Load() (*Config, error) {
	env := &envReader{}

	config := &Config{
		DatabaseDSN:      getEnv("DB_DSN", ""),
		DBMaxConns:       int32(env.asInt("DB_MAX_CONNS", 0)),
		OLTConfigPath:    getEnv("OLT_CONFIG_PATH", DefaultOLTConfigPath),
		StatusTablePath:  getEnv("STATUS_TABLE_PATH", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogJSON:          env.asBool("LOG_JSON", false),
		StoreTimeout:     env.asDuration("STORE_TIMEOUT", DefaultStoreTimeout),
		StaleAfterCycles: env.asInt("STALE_AFTER_CYCLES", 0),
		PollOnStart:      env.asBool("POLL_ON_START", true),
		MetricsListen:    getEnvOrEmpty("METRICS_LISTEN", DefaultMetricsListen),
		Migrate:          env.asBool("MIGRATE", true),
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	olts, err := LoadOLTFile(config.OLTConfigPath)
	if err != nil {
		return nil, err
	}
	config.OLTs = olts

	return config, nil
}

// validateConfig ensures all required configuration values are present
func validateConfig(config *Config) error {
	required := map[string]string{
		"DB_DSN":          config.DatabaseDSN,
		"OLT_CONFIG_PATH": config.OLTConfigPath,
	}

	for key, value := range required {
		if value == "" {
			return fmt.Errorf("%w: variável de ambiente obrigatória %s não está definida", domain.ErrConfig, key)
		}
	}

	if config.StaleAfterCycles < 0 {
		return fmt.Errorf("%w: STALE_AFTER_CYCLES não pode ser negativo", domain.ErrConfig)
	}

	if config.StoreTimeout <= 0 {
		return fmt.Errorf("%w: STORE_TIMEOUT deve ser positivo", domain.ErrConfig)
	}

	return nil
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrEmpty is like getEnv but an explicitly empty variable wins over the default
func getEnvOrEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and collects every malformed one
type envReader struct {
	errs []error
}

func (r *envReader) fail(key, value, kind string) {
	r.errs = append(r.errs, fmt.Errorf("variável %s=%q não é %s válido", key, value, kind))
}

// asInt retrieves environment variable as integer with fallback
func (r *envReader) asInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, "um inteiro")
		return defaultValue
	}
	return intVal
}

func (r *envReader) asBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(key, value, "um booleano")
		return defaultValue
	}
	return boolVal
}

// asDuration accepts Go durations ("45s") or plain seconds ("45")
func (r *envReader) asDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	r.fail(key, value, "uma duração")
	return defaultValue
}
