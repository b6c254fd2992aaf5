package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
	if cfg.Database.Driver != DefaultDatabaseDriver || cfg.Database.DSN != DefaultDatabaseDSN {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Scheduler.GroupsFile != DefaultGroupsFile {
		t.Fatalf("groups file = %q", cfg.Scheduler.GroupsFile)
	}
	if cfg.Scheduler.UTCOffset != 0 {
		t.Fatalf("utc offset = %d, want 0", cfg.Scheduler.UTCOffset)
	}
	if cfg.Scheduler.FlushInterval != DefaultFlushInterval {
		t.Fatalf("flush interval = %d", cfg.Scheduler.FlushInterval)
	}
	if cfg.NATS.URL != "" || cfg.NATS.Subject != DefaultNATSSubject {
		t.Fatalf("nats = %+v", cfg.NATS)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
database:
  driver: postgres
  dsn: postgres://localhost/taskmill?sslmode=disable
scheduler:
  groupsFile: /etc/taskmill/groups.json
  utcOffsetHours: 5
  flushIntervalSeconds: 10
logging:
  level: debug
  pretty: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Scheduler.UTCOffset != 5 || cfg.Scheduler.FlushInterval != 10 {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Pretty {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
`)
	t.Setenv("TASKMILL_SERVER_PORT", "7070")
	t.Setenv("TASKMILL_DB_DRIVER", "postgres")
	t.Setenv("TASKMILL_UTC_OFFSET_HOURS", "-3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("port = %q, want env override", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Scheduler.UTCOffset != -3 {
		t.Fatalf("utc offset = %d", cfg.Scheduler.UTCOffset)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file must be an error")
	}
	path := writeConfig(t, "{not yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("malformed yaml must be an error")
	}
}
