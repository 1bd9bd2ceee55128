package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tanq16/partfetch/internal/utils"
	"gopkg.in/yaml.v3"
)

// Config is the partfetch configuration file. Server and client share one
// file so a single deployment can describe both ends.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	Dir          string        `yaml:"dir"`
	Table        string        `yaml:"table"`
	Snapshot     string        `yaml:"snapshot"`
	MaxConns     int           `yaml:"max_conns"`
	AcceptRate   float64       `yaml:"accept_rate"`
	AcceptBurst  int           `yaml:"accept_burst"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	StatusListen string        `yaml:"status_listen"`
}

type ClientConfig struct {
	Address        string        `yaml:"address"`
	OutputDir      string        `yaml:"output_dir"`
	Parts          int           `yaml:"parts"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	IOTimeout      time.Duration `yaml:"io_timeout"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	TriggerFile    string        `yaml:"trigger_file"`
	LedgerPath     string        `yaml:"ledger"`
	SharedFallback bool          `yaml:"shared_fallback"`
	Retry          RetryConfig   `yaml:"retry"`
	Reconnect      RetryConfig   `yaml:"reconnect"`
}

// RetryConfig is a fixed-backoff retry bound.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:       utils.DefaultAddress,
			Dir:          "server_files",
			MaxConns:     64,
			AcceptBurst:  16,
			IdleTimeout:  5 * time.Minute,
			WriteTimeout: utils.DefaultIOTimeout,
		},
		Client: ClientConfig{
			Address:      utils.DefaultAddress,
			OutputDir:    "downloads",
			Parts:        utils.DefaultParts,
			DialTimeout:  utils.DefaultDialTimeout,
			IOTimeout:    utils.DefaultIOTimeout,
			ProbeTimeout: utils.DefaultProbeTimeout,
			PollInterval: 5 * time.Second,
			TriggerFile:  "input.txt",
			Retry: RetryConfig{
				Attempts: 3,
				Backoff:  time.Second,
			},
			Reconnect: RetryConfig{
				Attempts: 3,
				Backoff:  time.Second,
			},
		},
	}
}

// LoadFromFile overlays a YAML file on top of Default(). Durations use Go
// syntax ("5s", "2m").
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv applies PARTFETCH_* environment overrides.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PARTFETCH_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("PARTFETCH_DIR"); v != "" {
		c.Server.Dir = v
	}
	if v := os.Getenv("PARTFETCH_ADDRESS"); v != "" {
		c.Client.Address = v
	}
	if v := os.Getenv("PARTFETCH_OUTPUT_DIR"); v != "" {
		c.Client.OutputDir = v
	}
	if v := os.Getenv("PARTFETCH_PARTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PARTFETCH_PARTS: %w", err)
		}
		c.Client.Parts = n
	}
	if v := os.Getenv("PARTFETCH_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PARTFETCH_POLL_INTERVAL: %w", err)
		}
		c.Client.PollInterval = d
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Listen == "" {
		return errors.New("config: server.listen is required")
	}
	if c.Dir == "" {
		return errors.New("config: server.dir is required")
	}
	if c.MaxConns < 0 {
		return errors.New("config: server.max_conns must not be negative")
	}
	if c.AcceptRate < 0 {
		return errors.New("config: server.accept_rate must not be negative")
	}
	return nil
}

func (c *ClientConfig) Validate() error {
	if c.Address == "" {
		return errors.New("config: client.address is required")
	}
	if c.Parts <= 0 {
		return errors.New("config: client.parts must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: client.retry.attempts must be positive")
	}
	if c.ProbeTimeout <= 0 || c.IOTimeout <= 0 {
		return errors.New("config: client timeouts must be positive")
	}
	return nil
}

// ConnConfig derives the dialer settings for the client.
func (c *ClientConfig) ConnConfig() utils.ConnConfig {
	return utils.ConnConfig{
		Address:        c.Address,
		DialTimeout:    c.DialTimeout,
		IOTimeout:      c.IOTimeout,
		HighThreadMode: c.Parts > 5,
	}
}
