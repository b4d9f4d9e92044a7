package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings. The sync core only reads it.
type Config struct {
	ServerURL     string
	PublicBaseURL string
	NodeID        string

	AuthEnabled bool
	Username    string
	Password    string

	DataDir string

	LivenessTTL            time.Duration
	ProbeTimeout           time.Duration
	FetchTimeout           time.Duration
	TransferTimeout        time.Duration
	MaxConcurrentTransfers int
	StatusPollInterval     time.Duration

	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8086/v0"
	c.PublicBaseURL = ""
	c.NodeID = "local"
	c.AuthEnabled = false
	c.Username = ""
	c.Password = ""
	c.DataDir = defaultDataDir()
	c.LivenessTTL = 5 * time.Second
	c.ProbeTimeout = 3 * time.Second
	c.FetchTimeout = 60 * time.Second
	c.TransferTimeout = 30 * time.Minute
	c.MaxConcurrentTransfers = 4
	c.StatusPollInterval = time.Second
	c.LogLevel = "info"
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "planetsync")
	}
	return ".planetsync"
}

// Load builds a Config from defaults, the config file named in args (if any)
// and the flags in args. Later sources take precedence.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
