package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
program:
  id: GHTszogQs3yHDPU4L5wQDRgcnddQh2nkizuuXAoFTpqG
storage:
  backend: memory
`)

	cfg, v, err := LoadFile(path, "test")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "test", cfg.AppEnv)
	assert.Equal(t, DefaultProgramSeed, cfg.Program.Seed)
	assert.Equal(t, 10, cfg.Program.MaxLessons)
	assert.Equal(t, 32, cfg.Program.MaxLessonIDLength)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, "en", cfg.I18n.DefaultLang)
}

func TestLoadFile_RejectsMissingProgramID(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
`)

	_, _, err := LoadFile(path, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}

func TestLoadFile_RejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
program:
  id: GHTszogQs3yHDPU4L5wQDRgcnddQh2nkizuuXAoFTpqG
storage:
  backend: etcd
`)

	_, _, err := LoadFile(path, "test")
	assert.Error(t, err)
}

func TestValidate_RejectsBadCron(t *testing.T) {
	cfg := &Config{
		Program: ProgramConfig{ID: "x", Seed: DefaultProgramSeed, MaxLessons: 1, MaxLessonIDLength: 1},
		HTTP:    HTTPConfig{Addr: ":0"},
		Storage: StorageConfig{Backend: "memory"},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Jobs:    JobsConfig{Enabled: true, ReconcileCron: "every tuesday"},
	}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile_cron")
}

func TestValidate_RejectsBadRateLimitWindow(t *testing.T) {
	cfg := &Config{
		Program:   ProgramConfig{ID: "x", Seed: DefaultProgramSeed, MaxLessons: 1, MaxLessonIDLength: 1},
		HTTP:      HTTPConfig{Addr: ":0"},
		Storage:   StorageConfig{Backend: "memory"},
		Redis:     RedisConfig{Addr: "localhost:6379"},
		RateLimit: RateLimitConfig{Enabled: true, PerSigner: RateLimitRule{Limit: 1, Window: "soon"}},
	}

	assert.Error(t, Validate(cfg))
}

func TestGetDBConnectionString(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", Name: "ledger", SSLMode: "disable",
	}}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ledger sslmode=disable", cfg.GetDBConnectionString())
}
