// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	NATS      NATSConfig      `yaml:"nats"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
}

// DatabaseConfig holds run-store configuration. Driver is "sqlite" (local
// file, the default) or "postgres".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CacheConfig holds LevelDB cache configuration. An empty path disables the
// cache.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig holds the optional lifecycle event stream configuration. An
// empty URL disables publishing.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// SchedulerConfig holds group scheduling configuration
type SchedulerConfig struct {
	GroupsFile    string `yaml:"groupsFile"`
	UTCOffset     int    `yaml:"utcOffsetHours"`
	FlushInterval int    `yaml:"flushIntervalSeconds"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default configuration values
const (
	DefaultServerPort         = "8080"
	DefaultServerReadTimeout  = 30
	DefaultServerWriteTimeout = 30
	DefaultDatabaseDriver     = "sqlite"
	DefaultDatabaseDSN        = "./data/taskmill.db"
	DefaultGroupsFile         = "groups.json"
	DefaultNATSSubject        = "taskmill.status"
	DefaultFlushInterval      = 5
	DefaultLogLevel           = "info"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// Load reads the YAML configuration file and applies environment overrides.
// A malformed or unreadable file is fatal to startup.
func Load(configPath string) (*Config, error) {
	var config Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server = ServerConfig{
		Port:         getEnv("TASKMILL_SERVER_PORT", pick(config.Server.Port, DefaultServerPort)),
		ReadTimeout:  getEnvInt("TASKMILL_SERVER_READ_TIMEOUT", pickInt(config.Server.ReadTimeout, DefaultServerReadTimeout)),
		WriteTimeout: getEnvInt("TASKMILL_SERVER_WRITE_TIMEOUT", pickInt(config.Server.WriteTimeout, DefaultServerWriteTimeout)),
	}

	config.Database = DatabaseConfig{
		Driver: getEnv("TASKMILL_DB_DRIVER", pick(config.Database.Driver, DefaultDatabaseDriver)),
		DSN:    getEnv("TASKMILL_DB_DSN", pick(config.Database.DSN, DefaultDatabaseDSN)),
	}

	config.Cache = CacheConfig{
		Path: getEnv("TASKMILL_CACHE_PATH", config.Cache.Path),
	}

	config.NATS = NATSConfig{
		URL:     getEnv("TASKMILL_NATS_URL", config.NATS.URL),
		Subject: getEnv("TASKMILL_NATS_SUBJECT", pick(config.NATS.Subject, DefaultNATSSubject)),
	}

	config.Scheduler = SchedulerConfig{
		GroupsFile:    getEnv("TASKMILL_GROUPS_FILE", pick(config.Scheduler.GroupsFile, DefaultGroupsFile)),
		UTCOffset:     getEnvInt("TASKMILL_UTC_OFFSET_HOURS", config.Scheduler.UTCOffset),
		FlushInterval: getEnvInt("TASKMILL_FLUSH_INTERVAL_SECONDS", pickInt(config.Scheduler.FlushInterval, DefaultFlushInterval)),
	}

	config.Logging = LoggingConfig{
		Level:  getEnv("TASKMILL_LOG_LEVEL", pick(config.Logging.Level, DefaultLogLevel)),
		Pretty: config.Logging.Pretty,
	}

	return &config, nil
}

func pick(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func pickInt(value, defaultValue int) int {
	if value != 0 {
		return value
	}
	return defaultValue
}
