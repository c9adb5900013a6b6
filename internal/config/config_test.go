package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := load(filepath.Join(t.TempDir(), "missing.env"))
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
	if cfg.CommitMaxAttempts != 3 || cfg.SyncMaxAttempts != 5 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadReadsEnvFileAndEnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "PORT=9090\nCOMMIT_MAX_ATTEMPTS=7\nBUSINESS_TIMEZONE=America/Argentina/Buenos_Aires\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PORT", "7070")

	cfg := load(path)
	if cfg.Port != "7070" {
		t.Fatalf("expected environment to override file, got %s", cfg.Port)
	}
	if cfg.CommitMaxAttempts != 7 {
		t.Fatalf("expected COMMIT_MAX_ATTEMPTS from file, got %d", cfg.CommitMaxAttempts)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "America/Argentina/Buenos_Aires" {
		t.Fatalf("expected business timezone from file, got %v err=%v", loc, err)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("COMMIT_MAX_ATTEMPTS", "0")
	t.Setenv("SYNC_INTERVAL_SECONDS", "-4")

	cfg := load(filepath.Join(t.TempDir(), "missing.env"))
	if cfg.CommitMaxAttempts != 3 || cfg.SyncIntervalSeconds != 15 {
		t.Fatalf("expected fallbacks, got attempts=%d interval=%d", cfg.CommitMaxAttempts, cfg.SyncIntervalSeconds)
	}
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	if _, err := (Config{BusinessTimezone: "Mars/Olympus"}).Location(); err == nil {
		t.Fatalf("expected unknown timezone to fail")
	}
}

func TestLoadRegisterDefaults(t *testing.T) {
	t.Setenv("PRICE_REFRESH_SECONDS", "3")
	t.Setenv("REGISTER_USERNAME", " cashier ")

	cfg := load(filepath.Join(t.TempDir(), "missing.env"))
	if cfg.RegisterListenAddr != "127.0.0.1:8181" {
		t.Fatalf("expected loopback intake by default, got %q", cfg.RegisterListenAddr)
	}
	if cfg.PriceRefreshSeconds != 300 {
		t.Fatalf("expected refresh fallback, got %d", cfg.PriceRefreshSeconds)
	}
	if cfg.RegisterUsername != "cashier" || cfg.RegisterToken != "" {
		t.Fatalf("unexpected register credentials %q token=%q", cfg.RegisterUsername, cfg.RegisterToken)
	}
}
