package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/spigell/jobnorm/internal/skills"
)

func load(t *testing.T, file string) (Config, error) {
	t.Helper()
	v := viper.New()
	if err := Prepare(v); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := ReadFile(v, file); err != nil {
		t.Fatalf("read file: %v", err)
	}
	return Load(v)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != defaultDSN {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.SkillMode() != skills.ModeSkillNER {
		t.Fatalf("expected skillner mode, got %q", cfg.Skills.Mode)
	}
	if cfg.Dedupe.Threshold != 0.8 || cfg.Dedupe.NumPerm != 128 || cfg.Dedupe.FuzzyThreshold != 0.9 {
		t.Fatalf("unexpected dedupe defaults: %+v", cfg.Dedupe)
	}
	if cfg.Pipeline.BatchSize != 1000 {
		t.Fatalf("expected batch size 1000, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Embedding.Provider != "none" {
		t.Fatalf("expected no embedding provider, got %q", cfg.Embedding.Provider)
	}
	if cfg.Redis.TTL != 30*time.Minute {
		t.Fatalf("expected 30m lock ttl, got %s", cfg.Redis.TTL)
	}
}

func TestFileAndEnvironment(t *testing.T) {
	file := writeFile(t, "jobnorm.yaml", `
database:
  driver: postgres
  dsn: postgres://localhost/jobnorm
dedupe:
  threshold: 0.75
  num_perm: 64
pipeline:
  batch_size: 200
redis:
  addr: localhost:6379
  ttl: 5m
headhunter:
  max_pages: 3
  search:
    text: data analyst
    areas: [1, 2]
`)
	t.Setenv("SKILL_EXTRACTOR_MODE", "Hybrid")
	t.Setenv("JOBNORM_PIPELINE_BATCH_SIZE", "50")

	cfg, err := load(t, file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected postgres, got %q", cfg.Database.Driver)
	}
	if cfg.Dedupe.Threshold != 0.75 || cfg.Dedupe.NumPerm != 64 {
		t.Fatalf("dedupe settings not read: %+v", cfg.Dedupe)
	}
	if cfg.Dedupe.FuzzyThreshold != 0.9 {
		t.Fatalf("expected default fuzzy threshold, got %v", cfg.Dedupe.FuzzyThreshold)
	}
	if cfg.Pipeline.BatchSize != 50 {
		t.Fatalf("expected env to win, got batch size %d", cfg.Pipeline.BatchSize)
	}
	if cfg.SkillMode() != skills.ModeHybrid {
		t.Fatalf("expected hybrid mode from %s, got %q", ModeEnv, cfg.Skills.Mode)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.TTL != 5*time.Minute {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Headhunter.Options.MaxPages != 3 || cfg.Headhunter.Options.Search.Text != "data analyst" {
		t.Fatalf("unexpected headhunter options: %+v", cfg.Headhunter.Options)
	}
	if len(cfg.Headhunter.Options.Search.Areas) != 2 {
		t.Fatalf("expected two areas, got %v", cfg.Headhunter.Options.Search.Areas)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	file := writeFile(t, "bad.yaml", `
database:
  driver: mysql
dedupe:
  threshold: 1.5
  num_perm: 0
skills:
  mode: spacy
pipeline:
  batch_size: -1
`)

	_, err := load(t, file)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	for _, key := range []string{"database.driver", "dedupe.threshold", "dedupe.num_perm", "skills.mode", "pipeline.batch_size"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %q in %v", key, err)
		}
	}
}

func TestReadFileRequiresExplicitFile(t *testing.T) {
	v := viper.New()
	if err := ReadFile(v, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit file")
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "JOBNORM_TEST_ENV_FILE_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}

	path := writeFile(t, ".env", key+"=from-file\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("expected value from env file, got %q", got)
	}
}

func TestSecrets(t *testing.T) {
	dsnFile := writeFile(t, "dsn", "postgres://secret@db/jobnorm\n")
	cfg := Config{}
	cfg.Database.Driver = "postgres"
	cfg.Database.DSNFile = dsnFile

	db, err := cfg.DatabaseConfig()
	if err != nil {
		t.Fatalf("database config: %v", err)
	}
	if db.DSN != "postgres://secret@db/jobnorm" || db.DSNFile != "" {
		t.Fatalf("unexpected resolved database config: %+v", db)
	}

	cfg.Embedding.Provider = "openai"
	t.Setenv("OPENAI_API_KEY", "sk-test")
	key, err := cfg.EmbeddingAPIKey()
	if err != nil || key != "sk-test" {
		t.Fatalf("expected key from env, got %q (%v)", key, err)
	}

	token, err := cfg.HeadhunterToken()
	if err != nil || token != "" {
		t.Fatalf("expected empty optional token, got %q (%v)", token, err)
	}
}
