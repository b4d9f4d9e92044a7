package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/planetsync/internal/flagx"
	"github.com/dmitrijs2005/planetsync/internal/timex"
)

// FileConfig is a DTO used only for decoding config files. Pointer fields
// tell "absent" from "zero", so only keys present in the file override the
// current values.
type FileConfig struct {
	ServerURL     *string `json:"server_url" yaml:"server_url"`
	PublicBaseURL *string `json:"public_base_url" yaml:"public_base_url"`
	NodeID        *string `json:"node_id" yaml:"node_id"`

	AuthEnabled *bool   `json:"auth_enabled" yaml:"auth_enabled"`
	Username    *string `json:"username" yaml:"username"`
	Password    *string `json:"password" yaml:"password"`

	DataDir *string `json:"data_dir" yaml:"data_dir"`

	LivenessTTL            *timex.Duration `json:"liveness_ttl" yaml:"liveness_ttl"`
	ProbeTimeout           *timex.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	FetchTimeout           *timex.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
	TransferTimeout        *timex.Duration `json:"transfer_timeout" yaml:"transfer_timeout"`
	MaxConcurrentTransfers *int            `json:"max_concurrent_transfers" yaml:"max_concurrent_transfers"`
	StatusPollInterval     *timex.Duration `json:"status_poll_interval" yaml:"status_poll_interval"`

	LogLevel *string `json:"log_level" yaml:"log_level"`
}

// parseFile overlays cfg with the file given by -c/-config. No flag, no
// change.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, fc.ServerURL)
	setString(&cfg.PublicBaseURL, fc.PublicBaseURL)
	setString(&cfg.NodeID, fc.NodeID)
	if fc.AuthEnabled != nil {
		cfg.AuthEnabled = *fc.AuthEnabled
	}
	setString(&cfg.Username, fc.Username)
	setString(&cfg.Password, fc.Password)
	setString(&cfg.DataDir, fc.DataDir)
	setDuration(&cfg.LivenessTTL, fc.LivenessTTL)
	setDuration(&cfg.ProbeTimeout, fc.ProbeTimeout)
	setDuration(&cfg.FetchTimeout, fc.FetchTimeout)
	setDuration(&cfg.TransferTimeout, fc.TransferTimeout)
	if fc.MaxConcurrentTransfers != nil {
		cfg.MaxConcurrentTransfers = *fc.MaxConcurrentTransfers
	}
	setDuration(&cfg.StatusPollInterval, fc.StatusPollInterval)
	setString(&cfg.LogLevel, fc.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
