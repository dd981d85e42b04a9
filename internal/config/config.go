// Package config loads jobnorm settings from the config file, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/spigell/jobnorm/internal/dedupe"
	"github.com/spigell/jobnorm/internal/embedding"
	"github.com/spigell/jobnorm/internal/pipeline"
	"github.com/spigell/jobnorm/internal/quality"
	"github.com/spigell/jobnorm/internal/runlock"
	"github.com/spigell/jobnorm/internal/secrets"
	"github.com/spigell/jobnorm/internal/skills"
	"github.com/spigell/jobnorm/internal/source/headhunter"
	"github.com/spigell/jobnorm/internal/store/sqlstore"
)

const (
	App       = "jobnorm"
	EnvPrefix = "JOBNORM"
	// ModeEnv selects the skill extractor mode without the prefix.
	ModeEnv = "SKILL_EXTRACTOR_MODE"

	defaultDSN = "data/jobnorm.db"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Debug bool `mapstructure:"debug"`
	JSON  bool `mapstructure:"json"`

	Database sqlstore.Config `mapstructure:"database"`

	// RegistryFile overrides tables of the built-in registry.
	RegistryFile string           `mapstructure:"registry_file"`
	Skills       SkillsConfig     `mapstructure:"skills"`
	Dedupe       dedupe.Config    `mapstructure:"dedupe"`
	Pipeline     pipeline.Config  `mapstructure:"pipeline"`
	Embedding    embedding.Config `mapstructure:"embedding"`
	Redis        runlock.Config   `mapstructure:"redis"`
	Quality      QualityConfig    `mapstructure:"quality"`
	Headhunter   HeadhunterConfig `mapstructure:"headhunter"`
}

type SkillsConfig struct {
	Mode string `mapstructure:"mode"`
}

type QualityConfig struct {
	Gates quality.Gates `mapstructure:"gates"`
}

type HeadhunterConfig struct {
	TokenFile string             `mapstructure:"token_file"`
	UserAgent string             `mapstructure:"user_agent"`
	Options   headhunter.Options `mapstructure:",squash"`
}

func setDefaults(v *viper.Viper) {
	d := dedupe.DefaultConfig()
	e := embedding.DefaultConfig()
	g := quality.DefaultGates()
	r := runlock.DefaultConfig()

	v.SetDefault("debug", false)
	v.SetDefault("json", false)
	v.SetDefault("database.driver", sqlstore.DriverSQLite)
	v.SetDefault("database.dsn", defaultDSN)
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("registry_file", "")
	v.SetDefault("skills.mode", string(skills.ModeSkillNER))

	v.SetDefault("dedupe.threshold", d.Threshold)
	v.SetDefault("dedupe.num_perm", d.NumPerm)
	v.SetDefault("dedupe.fuzzy_threshold", d.FuzzyThreshold)
	v.SetDefault("dedupe.shingle_size", d.ShingleSize)
	v.SetDefault("dedupe.seed", d.Seed)

	v.SetDefault("pipeline.batch_size", pipeline.DefaultBatchSize)

	v.SetDefault("embedding.provider", e.Provider)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.api_key_file", "")
	v.SetDefault("embedding.max_tokens", e.MaxTokens)
	v.SetDefault("embedding.rate_per_sec", e.RatePerSec)
	v.SetDefault("embedding.burst", e.Burst)
	v.SetDefault("embedding.retries", e.Retries)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", r.TTL)
	v.SetDefault("redis.prefix", r.Prefix)

	v.SetDefault("quality.gates.min_title_coverage", g.MinTitleCoverage)
	v.SetDefault("quality.gates.min_skill_coverage", g.MinSkillCoverage)
	v.SetDefault("quality.gates.min_avg_quality", g.MinAvgQuality)
	v.SetDefault("quality.gates.max_duplicate_rate", g.MaxDuplicateRate)

	v.SetDefault("headhunter.token_file", "")
	v.SetDefault("headhunter.user_agent", "")
	v.SetDefault("headhunter.max_pages", 1)
	v.SetDefault("headhunter.details", false)
}

// Prepare wires defaults and environment lookups into v. Flags may be bound
// to v afterwards.
func Prepare(v *viper.Viper) error {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("skills.mode", EnvPrefix+"_SKILLS_MODE", ModeEnv); err != nil {
		return fmt.Errorf("binding %s: %w", ModeEnv, err)
	}
	if err := v.BindEnv("headhunter.token_file", EnvPrefix+"_HEADHUNTER_TOKEN_FILE", "HH_TOKEN_FILE"); err != nil {
		return fmt.Errorf("binding HH_TOKEN_FILE: %w", err)
	}
	return nil
}

// LoadEnvFile loads a .env file into the process environment. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ReadFile reads file, or jobnorm.yaml from the working directory when file
// is empty. Only an explicitly named file has to exist.
func ReadFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
		return nil
	}

	v.AddConfigPath(".")
	v.SetConfigName(App)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	cfg.Skills.Mode = strings.ToLower(strings.TrimSpace(cfg.Skills.Mode))
	cfg.Embedding.Provider = strings.ToLower(strings.TrimSpace(cfg.Embedding.Provider))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := skills.ParseMode(c.Skills.Mode); err != nil {
		errs = append(errs, fmt.Errorf("skills.mode: %w", err))
	}
	if err := c.Dedupe.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Embedding.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Quality.Gates.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Redis.TTL < 0 {
		errs = append(errs, fmt.Errorf("redis.ttl must not be negative, got %s", c.Redis.TTL))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// SkillMode returns the validated extractor mode.
func (c Config) SkillMode() skills.Mode {
	m, _ := skills.ParseMode(c.Skills.Mode)
	return m
}

// DatabaseConfig resolves the DSN, reading database.dsn_file when set.
func (c Config) DatabaseConfig() (sqlstore.Config, error) {
	db := c.Database
	dsn, err := secrets.Load(secrets.Source{
		Name:  "database dsn",
		Value: db.DSN,
		File:  db.DSNFile,
		Env:   "DATABASE_URL",
	})
	if err != nil {
		return sqlstore.Config{}, err
	}
	db.DSN = dsn
	db.DSNFile = ""
	return db, nil
}

// EmbeddingAPIKey resolves the provider key from embedding.api_key_file,
// embedding.api_key or the provider's usual environment variable.
func (c Config) EmbeddingAPIKey() (string, error) {
	env := ""
	switch c.Embedding.Provider {
	case embedding.ProviderOpenAI:
		env = "OPENAI_API_KEY"
	case embedding.ProviderGemini:
		env = "GEMINI_API_KEY"
	}
	return secrets.Load(secrets.Source{
		Name:  c.Embedding.Provider + " api key",
		Value: c.Embedding.APIKey,
		File:  c.Embedding.APIKeyFile,
		Env:   env,
	})
}

// HeadhunterToken returns the optional hh.ru token.
func (c Config) HeadhunterToken() (string, error) {
	return secrets.Optional(secrets.Source{Name: "headhunter token", File: c.Headhunter.TokenFile})
}
