package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// EngineConfig is one engine entry under scan.engines.
type EngineConfig struct {
	Name        string        `yaml:"name"`
	Path        string        `yaml:"path"`
	Image       string        `yaml:"image"`
	Args        []string      `yaml:"args"`
	Timeout     time.Duration `yaml:"timeout"`
	OKExitCodes []int         `yaml:"ok_exit_codes"`
}

type Config struct {
	Server struct {
		Port                int               `yaml:"port"`
		ReadTimeout         time.Duration     `yaml:"read_timeout"`
		WriteTimeout        time.Duration     `yaml:"write_timeout"`
		ShutdownTimeout     time.Duration     `yaml:"shutdown_timeout"`
		MaxBodyBytes        int64             `yaml:"max_body_bytes"`
		CORSOrigins         []string          `yaml:"cors_origins"`
		APIKeys             map[string]string `yaml:"api_keys"`
		AllowPrivateTargets bool              `yaml:"allow_private_targets"` // disables the SSRF guard
		RateLimit           struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"`
		URL      string `yaml:"url"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		Table    string `yaml:"table"`
	} `yaml:"database"`

	Scan struct {
		Sequential     bool           `yaml:"sequential"`
		DefaultTimeout time.Duration  `yaml:"default_timeout"`
		TempDir        string         `yaml:"temp_dir"`
		Docker         string         `yaml:"docker"`
		Engines        []EngineConfig `yaml:"engines"`
	} `yaml:"scan"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	PubSub struct {
		ProjectID string `yaml:"project_id"`
		Topic     string `yaml:"topic"`
	} `yaml:"pubsub"`

	Telemetry struct {
		Endpoint    string  `yaml:"endpoint"`
		Insecure    bool    `yaml:"insecure"`
		ServiceName string  `yaml:"service_name"`
		SampleRatio float64 `yaml:"sample_ratio"`
	} `yaml:"telemetry"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load baca file config.yaml. A missing file yields defaults; environment
// overrides are applied on top and the result is validated.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// engineEnv maps engines to the variables that override their binary path.
var engineEnv = map[domain.Engine]string{
	domain.EngineZAP:     "ZAP_PATH",
	domain.EngineNikto:   "NIKTO_PATH",
	domain.EngineWapiti:  "WAPITI_PATH",
	domain.EngineNmap:    "NMAP_PATH",
	domain.EngineWhatWeb: "WHATWEB_PATH",
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	if v, err := strconv.Atoi(getenv("PORT")); err == nil && v > 0 {
		c.Server.Port = v
	}
	set(&c.Database.Driver, "DB_DRIVER")
	set(&c.Database.URL, "DATABASE_URL", "POSTGRES_URL")
	if dsn := getenv("MYSQL_DSN"); dsn != "" {
		c.Database.URL = dsn
		if c.Database.Driver == "" {
			c.Database.Driver = DriverMySQL
		}
	}
	set(&c.Database.Table, "SCAN_TABLE")

	set(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	set(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	set(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	set(&c.Minio.BucketName, "MINIO_BUCKET")
	if getenv("MINIO_ENDPOINT") != "" {
		c.Minio.Enabled = true
	}

	set(&c.PubSub.ProjectID, "PUBSUB_PROJECT_ID")
	set(&c.PubSub.Topic, "PUBSUB_TOPIC")
	set(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	set(&c.Log.Level, "LOG_LEVEL")

	if len(c.Scan.Engines) == 0 {
		for _, e := range domain.Engines {
			c.Scan.Engines = append(c.Scan.Engines, EngineConfig{Name: string(e)})
		}
	}
	for i := range c.Scan.Engines {
		e := domain.Engine(strings.ToLower(strings.TrimSpace(c.Scan.Engines[i].Name)))
		if key, ok := engineEnv[e]; ok {
			set(&c.Scan.Engines[i].Path, key)
		}
	}
}

// Validate applies defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	// the scan request is synchronous
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 64 << 10
	}
	if c.Server.RateLimit.RPS < 0 {
		return fmt.Errorf("server.rate_limit.rps must not be negative")
	}

	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("database.driver %q: want postgres, mysql or memory", c.Database.Driver)
	}
	if c.Database.Table == "" {
		c.Database.Table = "web_scans"
	}

	if c.Scan.DefaultTimeout <= 0 {
		c.Scan.DefaultTimeout = domain.DefaultEngineTimeout
	}
	if c.Scan.Docker == "" {
		c.Scan.Docker = "docker"
	}
	if len(c.Scan.Engines) == 0 {
		return fmt.Errorf("scan.engines: at least one engine is required")
	}
	seen := map[domain.Engine]bool{}
	for i, e := range c.Scan.Engines {
		name, err := domain.ParseEngine(e.Name)
		if err != nil {
			return fmt.Errorf("scan.engines[%d]: %w", i, err)
		}
		if seen[name] {
			return fmt.Errorf("scan.engines[%d]: engine %q configured twice", i, name)
		}
		seen[name] = true
		if e.Timeout < 0 {
			return fmt.Errorf("scan.engines[%d]: negative timeout", i)
		}
		c.Scan.Engines[i].Name = string(name)
	}

	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		return fmt.Errorf("minio: endpoint and bucketName are required when enabled")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub: project_id is required when topic is set")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}

// EngineConfigs converts the engine section for the orchestrator, filling
// in the default timeout.
func (c *Config) EngineConfigs() []domain.EngineConfig {
	out := make([]domain.EngineConfig, 0, len(c.Scan.Engines))
	for _, e := range c.Scan.Engines {
		timeout := e.Timeout
		if timeout == 0 {
			timeout = c.Scan.DefaultTimeout
		}
		out = append(out, domain.EngineConfig{
			Name:        domain.Engine(e.Name),
			Path:        e.Path,
			Image:       e.Image,
			Args:        e.Args,
			Timeout:     timeout,
			OKExitCodes: e.OKExitCodes,
		})
	}
	return out
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	switch c.Database.Driver {
	case DriverMySQL:
		return c.MySQLDSN()
	case DriverPostgres:
		return c.PostgresURL()
	}
	return ""
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		port,
		c.Database.Name,
	)
}

// PostgresURL builds a postgres:// URL from the discrete fields.
func (c *Config) PostgresURL() string {
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
