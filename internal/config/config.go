package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source      SourceConfig      `yaml:"source" mapstructure:"source"`
	Destination DestinationConfig `yaml:"destination" mapstructure:"destination"`
	Salesforce  SalesforceConfig  `yaml:"salesforce" mapstructure:"salesforce"`
	Migration   MigrationConfig   `yaml:"migration" mapstructure:"migration"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// SourceConfig holds SendGrid API settings and the export scope.
type SourceConfig struct {
	APIKey           string   `yaml:"api_key" mapstructure:"api_key"`
	BaseURL          string   `yaml:"base_url" mapstructure:"base_url"`
	ListIDs          []string `yaml:"list_ids" mapstructure:"list_ids"`
	SegmentIDs       []string `yaml:"segment_ids" mapstructure:"segment_ids"`
	PollIntervalSecs int      `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxPolls         int      `yaml:"max_polls" mapstructure:"max_polls"`
}

// DestinationConfig selects and configures the CRM destination.
type DestinationConfig struct {
	Kind          string      `yaml:"kind" mapstructure:"kind"`
	BaseURL       string      `yaml:"base_url" mapstructure:"base_url"`
	Token         string      `yaml:"token" mapstructure:"token"`
	RateLimit     float64     `yaml:"rate_limit" mapstructure:"rate_limit"`
	LinkCompanies bool        `yaml:"link_companies" mapstructure:"link_companies"`
	Paths         PathsConfig `yaml:"paths" mapstructure:"paths"`
}

// PathsConfig overrides destination endpoint paths.
type PathsConfig struct {
	CreatePerson       string `yaml:"create_person" mapstructure:"create_person"`
	UpdatePerson       string `yaml:"update_person" mapstructure:"update_person"`
	SearchPerson       string `yaml:"search_person" mapstructure:"search_person"`
	CreateOrganization string `yaml:"create_organization" mapstructure:"create_organization"`
	SearchOrganization string `yaml:"search_organization" mapstructure:"search_organization"`
	GraphQL            string `yaml:"graphql" mapstructure:"graphql"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID    string `yaml:"client_id" mapstructure:"client_id"`
	Username    string `yaml:"username" mapstructure:"username"`
	KeyPath     string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL    string `yaml:"login_url" mapstructure:"login_url"`
	LinkAccount bool   `yaml:"link_account" mapstructure:"link_account"`
}

// MigrationConfig configures the task runner and its artifacts.
type MigrationConfig struct {
	Concurrency      int    `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size"`
	DryRun           bool   `yaml:"dry_run" mapstructure:"dry_run"`
	Resume           bool   `yaml:"resume" mapstructure:"resume"`
	CheckpointEvery  int    `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
	ProgressLogEvery int    `yaml:"progress_log_every" mapstructure:"progress_log_every"`
	LogsDir          string `yaml:"logs_dir" mapstructure:"logs_dir"`
}

// RetryConfig configures the outbound-call retry wrapper.
type RetryConfig struct {
	MaxAttempts          int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs          int `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	BreakerThreshold     int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetTimeSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the monitor API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the background alert checker run by serve.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StallMinutes         int     `yaml:"stall_minutes" mapstructure:"stall_minutes"`
	RecentRuns           int     `yaml:"recent_runs" mapstructure:"recent_runs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Destination kinds.
const (
	DestinationTwenty     = "twenty"
	DestinationSalesforce = "salesforce"
)

// legacyEnv maps config keys to unprefixed environment variable names so
// existing .env files keep working.
var legacyEnv = map[string]string{
	"source.api_key":                  "SENDGRID_API_KEY",
	"source.list_ids":                 "SENDGRID_LIST_IDS",
	"source.segment_ids":              "SENDGRID_SEGMENT_IDS",
	"destination.base_url":            "TWENTY_BASE_URL",
	"destination.token":               "TWENTY_API_TOKEN",
	"destination.paths.create_person": "TWENTY_CREATE_PERSON_PATH",
	"destination.paths.update_person": "TWENTY_UPDATE_PERSON_PATH",
	"destination.paths.search_person": "TWENTY_SEARCH_PERSON_PATH",
	"migration.concurrency":           "CONCURRENCY",
	"migration.batch_size":            "BATCH_SIZE",
	"migration.dry_run":               "DRY_RUN",
	"migration.resume":                "RESUME",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MIGRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "MIGRATE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", env)
		}
	}

	// Defaults
	v.SetDefault("source.base_url", "https://api.sendgrid.com")
	v.SetDefault("source.poll_interval_secs", 4)
	v.SetDefault("source.max_polls", 120)
	v.SetDefault("destination.kind", DestinationTwenty)
	v.SetDefault("destination.rate_limit", 10.0)
	v.SetDefault("destination.paths.create_person", "/rest/people")
	v.SetDefault("destination.paths.update_person", "/rest/people")
	v.SetDefault("destination.paths.search_person", "/rest/people/search")
	v.SetDefault("destination.paths.create_organization", "/rest/companies")
	v.SetDefault("destination.paths.search_organization", "/rest/companies/search")
	v.SetDefault("destination.paths.graphql", "/graphql")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("migration.concurrency", 5)
	v.SetDefault("migration.batch_size", 100)
	v.SetDefault("migration.checkpoint_every", 100)
	v.SetDefault("migration.progress_log_every", 50)
	v.SetDefault("migration.logs_dir", "logs")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.breaker_threshold", 10)
	v.SetDefault("retry.breaker_reset_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("server.port", 3000)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.failure_rate_threshold", 0.05)
	v.SetDefault("monitoring.stall_minutes", 15)
	v.SetDefault("monitoring.recent_runs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	if err := checkScalars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Comma-separated env values arrive as a single element.
	cfg.Source.ListIDs = splitIDs(cfg.Source.ListIDs)
	cfg.Source.SegmentIDs = splitIDs(cfg.Source.SegmentIDs)

	return &cfg, nil
}

var (
	intKeys = []string{
		"source.poll_interval_secs", "source.max_polls",
		"migration.concurrency", "migration.batch_size",
		"migration.checkpoint_every", "migration.progress_log_every",
		"retry.max_attempts", "retry.base_delay_ms",
		"retry.breaker_threshold", "retry.breaker_reset_secs",
		"server.port",
		"monitoring.check_interval_secs", "monitoring.stall_minutes", "monitoring.recent_runs",
	}
	floatKeys = []string{"destination.rate_limit", "monitoring.failure_rate_threshold"}
	boolKeys  = []string{
		"destination.link_companies", "salesforce.link_account",
		"migration.dry_run", "migration.resume",
	}
)

// checkScalars reports malformed numeric and boolean values, which usually
// come from env vars, as a ConfigurationError naming the key.
func checkScalars(v *viper.Viper) error {
	check := func(keys []string, kind string, parse func(string) error) error {
		for _, key := range keys {
			raw := strings.TrimSpace(v.GetString(key))
			if raw == "" {
				continue
			}
			if err := parse(raw); err != nil {
				return &ConfigurationError{Key: key, Message: fmt.Sprintf("must be %s, got %q", kind, raw)}
			}
		}
		return nil
	}

	if err := check(intKeys, "an integer", func(s string) error {
		_, err := strconv.Atoi(s)
		return err
	}); err != nil {
		return err
	}
	if err := check(floatKeys, "a number", func(s string) error {
		_, err := strconv.ParseFloat(s, 64)
		return err
	}); err != nil {
		return err
	}
	return check(boolKeys, "true or false", func(s string) error {
		_, err := strconv.ParseBool(s)
		return err
	})
}

func splitIDs(in []string) []string {
	var out []string
	for _, item := range in {
		for _, id := range strings.Split(item, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

// ConfigurationError reports an invalid or missing configuration value.
// It is fatal and raised before any network call is made.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Message)
}

// Validate checks the values the migration needs before it starts.
func (c *Config) Validate() error {
	if c.Source.APIKey == "" {
		return &ConfigurationError{Key: "source.api_key", Message: "SendGrid API key is required"}
	}
	return c.ValidateImport()
}

// ValidateImport checks everything Validate does except the source
// credentials, which a local file import does not use.
func (c *Config) ValidateImport() error {
	switch c.Destination.Kind {
	case DestinationTwenty:
		if c.Destination.BaseURL == "" {
			return &ConfigurationError{Key: "destination.base_url", Message: "Twenty CRM base URL is required"}
		}
		if c.Destination.Token == "" {
			return &ConfigurationError{Key: "destination.token", Message: "Twenty CRM API token is required"}
		}
		u, err := url.Parse(c.Destination.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ConfigurationError{Key: "destination.base_url", Message: "must be a valid URL"}
		}
	case DestinationSalesforce:
		if c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "" {
			return &ConfigurationError{Key: "salesforce", Message: "client_id, username and key_path are required"}
		}
	default:
		return &ConfigurationError{Key: "destination.kind", Message: fmt.Sprintf("unknown destination %q", c.Destination.Kind)}
	}

	if c.Migration.Concurrency < 1 || c.Migration.Concurrency > 50 {
		return &ConfigurationError{Key: "migration.concurrency", Message: "must be between 1 and 50"}
	}
	if c.Migration.BatchSize < 10 || c.Migration.BatchSize > 1000 {
		return &ConfigurationError{Key: "migration.batch_size", Message: "must be between 10 and 1000"}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return &ConfigurationError{Key: "store.driver", Message: fmt.Sprintf("unknown driver %q", c.Store.Driver)}
	}

	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
