package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flowbit/invoice-engine/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// EngineConfig holds the decision and learning tunables. The window sizes
// carry no documented rationale upstream, so they are kept configurable
// rather than baked into the rules.
type EngineConfig struct {
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold" mapstructure:"auto_approve_threshold"`
	RuleBoost            float64 `yaml:"rule_boost" mapstructure:"rule_boost"`
	MemoryBoost          float64 `yaml:"memory_boost" mapstructure:"memory_boost"`
	HighConfidenceMin    float64 `yaml:"high_confidence_min" mapstructure:"high_confidence_min"`
	ReinforceDelta       float64 `yaml:"reinforce_delta" mapstructure:"reinforce_delta"`
	ApprovedSeed         float64 `yaml:"approved_seed" mapstructure:"approved_seed"`
	RejectedSeed         float64 `yaml:"rejected_seed" mapstructure:"rejected_seed"`
	DuplicateWindowDays  int     `yaml:"duplicate_window_days" mapstructure:"duplicate_window_days"`
	POMatchWindowDays    int     `yaml:"po_match_window_days" mapstructure:"po_match_window_days"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentInvoices int     `yaml:"max_concurrent_invoices" mapstructure:"max_concurrent_invoices"`
	InvoicesPerSecond     float64 `yaml:"invoices_per_second" mapstructure:"invoices_per_second"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "invoices.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_invoices", 4)
	v.SetDefault("batch.invoices_per_second", 10.0)
	v.SetDefault("engine.auto_approve_threshold", 0.9)
	v.SetDefault("engine.rule_boost", 0.05)
	v.SetDefault("engine.memory_boost", 0.03)
	v.SetDefault("engine.high_confidence_min", 0.7)
	v.SetDefault("engine.reinforce_delta", 0.1)
	v.SetDefault("engine.approved_seed", 0.7)
	v.SetDefault("engine.rejected_seed", 0.3)
	v.SetDefault("engine.duplicate_window_days", 2)
	v.SetDefault("engine.po_match_window_days", 30)

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
