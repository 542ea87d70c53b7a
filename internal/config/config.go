// Package config loads the worker's YAML configuration, expanding environment
// variables and an optional .env sidecar the way the reference daemon does.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment is the discriminated deployment tag from spec §3. It selects the
// workspace retention policy, the default workspace directory, and whether
// services register with the backend. The backend URL and bucket name do not
// depend on it; they are set in the backend and object_store sections.
type Environment string

const (
	EnvDevelop    Environment = "develop"
	EnvTesting    Environment = "testing"
	EnvProduction Environment = "production"
)

// Valid reports whether e is one of the three recognized environments.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelop, EnvTesting, EnvProduction:
		return true
	default:
		return false
	}
}

// RetainWorkspaces reports whether the Notifier should preserve job workspaces
// after a successful upload. Only DEVELOP preserves them.
func (e Environment) RetainWorkspaces() bool { return e == EnvDevelop }

// Config is the root configuration loaded from worker.yaml.
type Config struct {
	Environment  Environment        `yaml:"environment"`
	WorkspaceDir string             `yaml:"workspace_dir"`
	Backend      BackendConfig      `yaml:"backend"`
	ObjectStore  ObjectStoreConfig  `yaml:"object_store"`
	Queue        QueueConfig        `yaml:"queue"`
	AdminAPI     AdminAPIConfig     `yaml:"admin_api"`
	Intervals    IntervalConfig     `yaml:"intervals"`
	DiskPressure DiskPressureConfig `yaml:"disk_pressure"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig selects the slog handler level and format.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// BackendConfig describes the central backend the services register with and
// fetch jobs from.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	BearerToken    string        `yaml:"bearer_token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ObjectStoreConfig configures the S3-compatible bucket the Updater mirrors.
type ObjectStoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// QueueConfig configures the embedded durable notification queue.
type QueueConfig struct {
	StoreDir      string        `yaml:"store_dir"`
	ClientPort    int           `yaml:"client_port"`
	VisibilityTTL time.Duration `yaml:"visibility_ttl"`
	MaxRetries    int           `yaml:"max_retries"`
}

// AdminAPIConfig configures the local TLS status server.
type AdminAPIConfig struct {
	Port        int    `yaml:"port"`
	BearerToken string `yaml:"bearer_token"`
	TLSCertPath string `yaml:"tls_cert_path"`
	TLSKeyPath  string `yaml:"tls_key_path"`
}

// IntervalConfig sets the Updater, Builder and Notifier loop intervals.
// Heartbeat is used as the Admin service's loop interval; the backend
// heartbeat itself runs every 60s regardless. StopPollInterval is not read:
// Stop always re-checks every 5s.
type IntervalConfig struct {
	UpdaterSync      time.Duration `yaml:"updater_sync"`
	BuilderPoll      time.Duration `yaml:"builder_poll"`
	NotifierDrain    time.Duration `yaml:"notifier_drain"`
	Heartbeat        time.Duration `yaml:"heartbeat"`
	StopPollInterval time.Duration `yaml:"stop_poll_interval"`
}

// DiskPressureConfig configures the disk-pressure purge thresholds from §5.
type DiskPressureConfig struct {
	MinFreeBytes   int64   `yaml:"min_free_bytes"`
	MinFreePercent float64 `yaml:"min_free_percent"`
}

// Load reads and parses a worker.yaml file, expanding ${VAR} references against
// the process environment (after loading an optional .env sidecar) and
// applying defaults for anything left unset.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "note: .env not loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if !cfg.Environment.Valid() {
		return nil, fmt.Errorf("invalid environment %q", cfg.Environment)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelop
	}
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = "./workspace/" + string(cfg.Environment)
	}
	if cfg.Backend.RequestTimeout == 0 {
		cfg.Backend.RequestTimeout = 10 * time.Second
	}
	if cfg.Queue.StoreDir == "" {
		cfg.Queue.StoreDir = cfg.WorkspaceDir + "/queue"
	}
	if cfg.Queue.ClientPort == 0 {
		cfg.Queue.ClientPort = 4222
	}
	if cfg.Queue.VisibilityTTL == 0 {
		cfg.Queue.VisibilityTTL = 1800 * time.Second
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 20
	}
	if cfg.AdminAPI.Port == 0 {
		cfg.AdminAPI.Port = 55555
	}
	if cfg.Intervals.UpdaterSync == 0 {
		cfg.Intervals.UpdaterSync = 60 * time.Second
	}
	if cfg.Intervals.BuilderPoll == 0 {
		cfg.Intervals.BuilderPoll = 5 * time.Second
	}
	if cfg.Intervals.NotifierDrain == 0 {
		cfg.Intervals.NotifierDrain = 5 * time.Second
	}
	if cfg.Intervals.Heartbeat == 0 {
		cfg.Intervals.Heartbeat = 60 * time.Second
	}
	if cfg.Intervals.StopPollInterval == 0 {
		cfg.Intervals.StopPollInterval = 5 * time.Second
	}
	if cfg.DiskPressure.MinFreeBytes == 0 {
		cfg.DiskPressure.MinFreeBytes = 1 << 30 // 1 GiB
	}
	if cfg.DiskPressure.MinFreePercent == 0 {
		cfg.DiskPressure.MinFreePercent = 0.25
	}
	if lvl := NormalizeLogLevel(string(cfg.Logging.Level)); lvl != "" {
		cfg.Logging.Level = lvl
	} else {
		cfg.Logging.Level = LogLevelInfo
	}
	if fmt := NormalizeLogFormat(string(cfg.Logging.Format)); fmt != "" {
		cfg.Logging.Format = fmt
	} else {
		cfg.Logging.Format = LogFormatJSON
	}
}

// Init scaffolds an example worker.yaml at configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Environment:  EnvDevelop,
		WorkspaceDir: "./workspace/develop",
		Backend: BackendConfig{
			BaseURL:        "https://backend.example.com",
			BearerToken:    "${BACKEND_TOKEN}",
			RequestTimeout: 10 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Bucket:          "compiler-deps-develop",
			Region:          "auto",
			AccessKeyID:     "${OBJECT_STORE_ACCESS_KEY_ID}",
			SecretAccessKey: "${OBJECT_STORE_SECRET_ACCESS_KEY}",
		},
		Queue: QueueConfig{
			StoreDir:      "./workspace/develop/queue",
			ClientPort:    4222,
			VisibilityTTL: 1800 * time.Second,
			MaxRetries:    20,
		},
		AdminAPI: AdminAPIConfig{
			Port:        55555,
			BearerToken: "${ADMIN_API_TOKEN}",
		},
	}
	applyDefaults(&example)

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(configPath, data, 0o644)
}

func loadDotEnv() error {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err == nil {
			return godotenv.Load(path)
		}
	}
	return fmt.Errorf("no .env file found")
}
