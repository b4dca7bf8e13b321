package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Worker   WorkerConfig   `yaml:"worker"`
	Sender   SenderConfig   `yaml:"sender"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	APIKey     string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type WorkerConfig struct {
	Enabled      bool     `yaml:"enabled"`
	PollInterval Duration `yaml:"poll_interval"`
	BatchSize    int      `yaml:"batch_size"`
	ClaimGrace   Duration `yaml:"claim_grace"`
}

type SenderConfig struct {
	Provider string           `yaml:"provider"` // http, smtp or sandbox
	HTTP     HTTPSenderConfig `yaml:"http"`
	SMTP     SMTPSenderConfig `yaml:"smtp"`
}

type HTTPSenderConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

type SMTPSenderConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	Subject  string `yaml:"subject"` // {{variable}} placeholders allowed
	Body     string `yaml:"body"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration parses yaml values like "60s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{Worker: WorkerConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides secrets and paths from the environment, so a .env
// file (loaded by the CLI) can keep them out of the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SALESFLOW_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("SALESFLOW_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SALESFLOW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SALESFLOW_SENDER_API_KEY"); v != "" {
		cfg.Sender.HTTP.APIKey = v
	}
	if v := os.Getenv("SALESFLOW_SMTP_PASSWORD"); v != "" {
		cfg.Sender.SMTP.Password = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/salesflow/app.db"
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = Duration(60 * time.Second)
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 50
	}
	if cfg.Worker.ClaimGrace == 0 {
		cfg.Worker.ClaimGrace = Duration(5 * time.Minute)
	}
	if cfg.Sender.Provider == "" {
		cfg.Sender.Provider = "sandbox"
	}
	if cfg.Sender.HTTP.Timeout == 0 {
		cfg.Sender.HTTP.Timeout = Duration(30 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	switch cfg.Sender.Provider {
	case "sandbox":
	case "http":
		if cfg.Sender.HTTP.BaseURL == "" {
			return fmt.Errorf("sender.http.base_url is required when provider is http")
		}
	case "smtp":
		if cfg.Sender.SMTP.Addr == "" {
			return fmt.Errorf("sender.smtp.addr is required when provider is smtp")
		}
		if cfg.Sender.SMTP.From == "" {
			return fmt.Errorf("sender.smtp.from is required when provider is smtp")
		}
	default:
		return fmt.Errorf("unknown sender.provider %q", cfg.Sender.Provider)
	}
	if cfg.Worker.BatchSize < 0 {
		return fmt.Errorf("worker.batch_size must be positive")
	}
	return nil
}
