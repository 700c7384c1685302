package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/sightings-cli/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the PostGIS database.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// Pool returns the pool sizing for db.Open.
func (s StoreConfig) Pool() db.PoolConfig {
	return db.PoolConfig{MaxConns: s.MaxConns, MinConns: s.MinConns}
}

// SourceConfig holds the remote sighting API credentials and tunables.
type SourceConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	UserEmail      string  `yaml:"user_email" mapstructure:"user_email"`
	UserPassword   string  `yaml:"user_password" mapstructure:"user_password"`
	ConsumerKey    string  `yaml:"consumer_key" mapstructure:"consumer_key"`
	ConsumerSecret string  `yaml:"consumer_secret" mapstructure:"consumer_secret"`
	TaxoGroup      int     `yaml:"taxo_group" mapstructure:"taxo_group"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// IngestConfig configures the time-windowed observation import.
type IngestConfig struct {
	HorizonDays    int    `yaml:"horizon_days" mapstructure:"horizon_days"`
	ChunkDays      int    `yaml:"chunk_days" mapstructure:"chunk_days"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelayMs   int    `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	SpeciesCheck   string `yaml:"species_check" mapstructure:"species_check"`
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"` // empty disables the push
}

// RetryDelay returns the fixed pause between fetch attempts.
func (c IngestConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// ReferenceConfig points at the static reference datasets loaded at startup.
type ReferenceConfig struct {
	RarityPath          string       `yaml:"rarity_path" mapstructure:"rarity_path"`
	LandcoverPath       string       `yaml:"landcover_path" mapstructure:"landcover_path"`
	LandcoverClassField string       `yaml:"landcover_class_field" mapstructure:"landcover_class_field"`
	TieBreak            string       `yaml:"tie_break" mapstructure:"tie_break"`
	Grids               []GridConfig `yaml:"grids" mapstructure:"grids"`
}

// GridConfig describes one grid resolution dataset.
type GridConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Path     string `yaml:"path" mapstructure:"path"`
	Table    string `yaml:"table" mapstructure:"table"`
	IDColumn string `yaml:"id_column" mapstructure:"id_column"`
}

// ServerConfig configures the query API.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	QueryTimeoutSecs int      `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SIGHTINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials have no defaults; bind them so env-only setups unmarshal.
	for _, key := range []string{
		"store.database_url",
		"source.user_email",
		"source.user_password",
		"source.consumer_key",
		"source.consumer_secret",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("source.base_url", "https://www.ornitho.ch/api")
	v.SetDefault("source.taxo_group", 1)
	v.SetDefault("source.timeout_secs", 15)
	v.SetDefault("source.rate_per_sec", 1.0)
	v.SetDefault("source.user_agent", "sightings-cli/1.0")
	v.SetDefault("ingest.horizon_days", 365)
	v.SetDefault("ingest.chunk_days", 7)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.retry_delay_ms", 2000)
	v.SetDefault("ingest.species_check", "store")
	v.SetDefault("ingest.pushgateway_url", "")
	v.SetDefault("reference.rarity_path", "data/rarity.json")
	v.SetDefault("reference.landcover_path", "data/LandCoverage.zip")
	v.SetDefault("reference.landcover_class_field", "OBJVAL")
	v.SetDefault("reference.tie_break", "first_match")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{
		"http://localhost",
		"http://localhost:8080",
		"http://localhost:3000",
		"http://localhost:5173",
	})
	v.SetDefault("server.query_timeout_secs", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the ingestion and query paths cannot run with.
func (c *Config) Validate() error {
	if c.Ingest.HorizonDays <= 0 {
		return eris.Errorf("config: ingest.horizon_days must be positive, got %d", c.Ingest.HorizonDays)
	}
	if c.Ingest.ChunkDays <= 0 {
		return eris.Errorf("config: ingest.chunk_days must be positive, got %d", c.Ingest.ChunkDays)
	}
	if c.Ingest.MaxAttempts <= 0 {
		return eris.Errorf("config: ingest.max_attempts must be positive, got %d", c.Ingest.MaxAttempts)
	}
	if c.Ingest.RetryDelayMs <= 0 {
		return eris.Errorf("config: ingest.retry_delay_ms must be positive, got %d", c.Ingest.RetryDelayMs)
	}
	switch c.Ingest.SpeciesCheck {
	case "store", "snapshot":
	default:
		return eris.Errorf("config: ingest.species_check must be store or snapshot, got %q", c.Ingest.SpeciesCheck)
	}
	switch c.Reference.TieBreak {
	case "first_match", "smallest_area":
	default:
		return eris.Errorf("config: reference.tie_break must be first_match or smallest_area, got %q", c.Reference.TieBreak)
	}
	seen := make(map[string]bool, len(c.Reference.Grids))
	for _, g := range c.Reference.Grids {
		if g.Name == "" || g.Path == "" {
			return eris.New("config: every reference.grids entry needs a name and a path")
		}
		if seen[g.Name] {
			return eris.Errorf("config: duplicate grid name %q", g.Name)
		}
		seen[g.Name] = true
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
