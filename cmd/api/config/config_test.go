package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lending-service/cmd/api/config"
	"github.com/lending-service/cmd/api/lending"
	"github.com/matryer/is"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "DATABASE_MIGRATIONS_PATH", "NOTIFICATIONS_URL", "HTTP_PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("falls back to the defaults when the file is missing", func(t *testing.T) {
		is := is.New(t)
		clearEnv(t)

		cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		is.NoErr(err)
		is.Equal(cfg, config.Default())

		p, err := cfg.Policy()
		is.NoErr(err)
		is.Equal(p, lending.DefaultPolicy())
	})

	t.Run("reads every section of the file", func(t *testing.T) {
		is := is.New(t)
		clearEnv(t)

		path := writeConfig(t, `
mode: dev
http:
  port: 9090
  request_timeout: 3s
lending:
  loan_period_days: 21
  fine_per_day: "1.25"
  max_open_loans: 3
database:
  url: postgres://localhost/lending
  migrations_path: db/migrations
notifications:
  enabled: true
  base_url: https://ntfy.sh/my-library
  timeout: 500ms
`)
		cfg, err := config.Load(path)
		is.NoErr(err)
		is.Equal(cfg.Mode, "dev")
		is.Equal(cfg.HTTP.Port, 9090)
		is.Equal(cfg.HTTP.RequestTimeout, 3*time.Second)
		is.Equal(cfg.Database.URL, "postgres://localhost/lending")
		is.Equal(cfg.Notifications.Timeout, 500*time.Millisecond)

		p, err := cfg.Policy()
		is.NoErr(err)
		is.Equal(p, lending.Policy{LoanPeriodDays: 21, FinePerDay: 125, MaxOpenLoans: 3})
	})

	t.Run("lets the environment override the file", func(t *testing.T) {
		is := is.New(t)
		clearEnv(t)
		t.Setenv("DATABASE_URL", "postgres://env/lending")
		t.Setenv("HTTP_PORT", "7070")

		cfg, err := config.Load(writeConfig(t, "database:\n  url: postgres://file/lending\n"))
		is.NoErr(err)
		is.Equal(cfg.Database.URL, "postgres://env/lending")
		is.Equal(cfg.HTTP.Port, 7070)
	})

	t.Run("rejects an unusable policy", func(t *testing.T) {
		is := is.New(t)

		for _, body := range []string{
			"lending:\n  loan_period_days: 0\n",
			"lending:\n  max_open_loans: -1\n",
			"lending:\n  fine_per_day: \"-0.50\"\n",
			"mode: staging\n",
		} {
			_, err := config.Load(writeConfig(t, body))
			is.True(err != nil)
		}
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		is := is.New(t)

		_, err := config.Load(writeConfig(t, "http: [unclosed"))
		is.True(err != nil)
	})
}
