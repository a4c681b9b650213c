package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Clearbit    ClearbitConfig    `yaml:"clearbit" mapstructure:"clearbit"`
	Logo        LogoConfig        `yaml:"logo" mapstructure:"logo"`
	Description DescriptionConfig `yaml:"description" mapstructure:"description"`
	Lookup      LookupConfig      `yaml:"lookup" mapstructure:"lookup"`
	Reconcile   ReconcileConfig   `yaml:"reconcile" mapstructure:"reconcile"`
	Upsert      UpsertConfig      `yaml:"upsert" mapstructure:"upsert"`
	Ingest      IngestConfig      `yaml:"ingest" mapstructure:"ingest"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// Store drivers.
const (
	DriverREST     = "rest"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StoreConfig configures the directory backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	// URL and Key address a PostgREST endpoint (rest driver).
	URL string `yaml:"url" mapstructure:"url"`
	Key string `yaml:"key" mapstructure:"key"`
	// DatabaseURL is the DSN for the postgres and sqlite drivers.
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the lookup cache.
type CacheConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// ClearbitConfig configures the name-to-domain suggestion provider.
type ClearbitConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int    `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LogoConfig holds the logo provider URL templates.
type LogoConfig struct {
	CDN              string `yaml:"cdn" mapstructure:"cdn"`
	Favicon          string `yaml:"favicon" mapstructure:"favicon"`
	FaviconByURL     string `yaml:"favicon_by_url" mapstructure:"favicon_by_url"`
	Default          string `yaml:"default" mapstructure:"default"`
	ProbeTimeoutSecs int    `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
}

// DescriptionConfig configures the description resolver.
type DescriptionConfig struct {
	MinLength        int    `yaml:"min_length" mapstructure:"min_length"`
	Template         string `yaml:"template" mapstructure:"template"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
}

// LookupConfig configures shared outbound lookup behavior.
type LookupConfig struct {
	SearchFallback    bool    `yaml:"search_fallback" mapstructure:"search_fallback"`
	SearchBaseURL     string  `yaml:"search_base_url" mapstructure:"search_base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ReconcileConfig configures the reconcile loop.
type ReconcileConfig struct {
	FetchLimit        int           `yaml:"fetch_limit" mapstructure:"fetch_limit"`
	FallbackLimit     int           `yaml:"fallback_limit" mapstructure:"fallback_limit"`
	BatchSize         int           `yaml:"batch_size" mapstructure:"batch_size"`
	BatchPause        time.Duration `yaml:"batch_pause" mapstructure:"batch_pause"`
	IdleSleep         time.Duration `yaml:"idle_sleep" mapstructure:"idle_sleep"`
	CycleSleep        time.Duration `yaml:"cycle_sleep" mapstructure:"cycle_sleep"`
	MaxRecordAttempts int           `yaml:"max_record_attempts" mapstructure:"max_record_attempts"`
	MaxIdleCycles     int           `yaml:"max_idle_cycles" mapstructure:"max_idle_cycles"`
	MaxCycles         int           `yaml:"max_cycles" mapstructure:"max_cycles"`
	MarkersFile       string        `yaml:"markers_file" mapstructure:"markers_file"`
}

// UpsertConfig configures batch write retries.
type UpsertConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
}

// IngestConfig configures the import command.
type IngestConfig struct {
	BatchSize           int           `yaml:"batch_size" mapstructure:"batch_size"`
	BatchPause          time.Duration `yaml:"batch_pause" mapstructure:"batch_pause"`
	Concurrency         int           `yaml:"concurrency" mapstructure:"concurrency"`
	DownloadDir         string        `yaml:"download_dir" mapstructure:"download_dir"`
	DownloadTimeoutSecs int           `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// A missing .env is fine; variables may come from the environment.
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DIRECTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy names used by existing deployments.
	if err := v.BindEnv("store.url", "DIRECTORY_STORE_URL", "SUPABASE_URL"); err != nil {
		return nil, eris.Wrap(err, "config: bind store.url")
	}
	if err := v.BindEnv("store.key", "DIRECTORY_STORE_KEY", "SUPABASE_SERVICE_ROLE_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind store.key")
	}

	// Defaults
	v.SetDefault("store.driver", DriverREST)
	v.SetDefault("store.table", "companies")
	v.SetDefault("store.timeout_secs", 60)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cache.driver", "file")
	v.SetDefault("cache.path", "data/clearbit_cache.json")
	v.SetDefault("clearbit.base_url", "https://autocomplete.clearbit.com")
	v.SetDefault("clearbit.timeout_secs", 6)
	v.SetDefault("clearbit.failure_threshold", 5)
	v.SetDefault("clearbit.reset_timeout_secs", 30)
	v.SetDefault("logo.cdn", "https://logo.clearbit.com/{domain}")
	v.SetDefault("logo.favicon", "https://icons.duckduckgo.com/ip3/{domain}.ico")
	v.SetDefault("logo.favicon_by_url", "https://t2.gstatic.com/faviconV2?client=SOCIAL&type=FAVICON&url={website}&size=128")
	v.SetDefault("logo.default", "https://saaspertise.com/default-logo.png")
	v.SetDefault("logo.probe_timeout_secs", 5)
	v.SetDefault("description.min_length", 10)
	v.SetDefault("description.template", "{name} is a SaaS or AI company offering innovative technology solutions.")
	v.SetDefault("description.fetch_timeout_secs", 8)
	v.SetDefault("description.user_agent", "Mozilla/5.0")
	v.SetDefault("lookup.search_fallback", false)
	v.SetDefault("lookup.search_base_url", "https://html.duckduckgo.com")
	v.SetDefault("lookup.requests_per_second", 2.0)
	v.SetDefault("lookup.burst", 2)
	v.SetDefault("lookup.breaker_threshold", 5)
	v.SetDefault("lookup.breaker_reset_secs", 30)
	v.SetDefault("reconcile.fetch_limit", 1000)
	v.SetDefault("reconcile.fallback_limit", 10000)
	v.SetDefault("reconcile.batch_size", 100)
	v.SetDefault("reconcile.batch_pause", time.Second)
	v.SetDefault("reconcile.idle_sleep", 5*time.Second)
	v.SetDefault("reconcile.cycle_sleep", 5*time.Second)
	v.SetDefault("reconcile.max_record_attempts", 3)
	v.SetDefault("reconcile.max_idle_cycles", 3)
	v.SetDefault("reconcile.max_cycles", 0)
	v.SetDefault("reconcile.markers_file", "")
	v.SetDefault("upsert.max_attempts", 3)
	v.SetDefault("upsert.base_delay", 3*time.Second)
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.batch_pause", time.Second)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.download_dir", "data/downloads")
	v.SetDefault("ingest.download_timeout_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "import", "reconcile", "slugs", "audit", "migrate" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "import", "reconcile", "slugs", "audit", "migrate":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case DriverREST:
		if c.Store.URL == "" {
			errs = append(errs, "store.url is required for the rest driver (or SUPABASE_URL)")
		}
		if c.Store.Key == "" {
			errs = append(errs, "store.key is required for the rest driver (or SUPABASE_SERVICE_ROLE_KEY)")
		}
	case DriverPostgres, DriverSQLite:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the "+c.Store.Driver+" driver")
		}
	default:
		errs = append(errs, "store.driver must be one of rest, postgres, sqlite")
	}

	if mode == "reconcile" || mode == "serve" {
		if c.Cache.Driver != "file" && c.Cache.Driver != "sqlite" {
			errs = append(errs, "cache.driver must be file or sqlite")
		}
		if c.Cache.Path == "" {
			errs = append(errs, "cache.path is required")
		}
		if c.Reconcile.FetchLimit <= 0 {
			errs = append(errs, "reconcile.fetch_limit must be > 0")
		}
		if c.Reconcile.BatchSize <= 0 {
			errs = append(errs, "reconcile.batch_size must be > 0")
		}
		if c.Reconcile.MaxRecordAttempts < 0 || c.Reconcile.MaxIdleCycles < 0 || c.Reconcile.MaxCycles < 0 {
			errs = append(errs, "reconcile limits must be >= 0")
		}
		if c.Description.MinLength < 0 {
			errs = append(errs, "description.min_length must be >= 0")
		}
	}

	if mode == "import" {
		if c.Ingest.BatchSize <= 0 {
			errs = append(errs, "ingest.batch_size must be > 0")
		}
		if c.Ingest.Concurrency < 1 || c.Ingest.Concurrency > 32 {
			errs = append(errs, "ingest.concurrency must be between 1 and 32")
		}
	}

	if c.Upsert.MaxAttempts < 1 {
		errs = append(errs, "upsert.max_attempts must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
