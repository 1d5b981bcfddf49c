// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable [Load] reads.
const EnvVar = "MONOVAULT_CONFIG"

// Config is the configuration of one monovault node.
type Config struct {
	// MyAddress is the host:port the peer RPC listener binds.
	MyAddress string `json:"my_address" yaml:"my_address"`

	// Peers maps each peer's vault name to its host:port.
	Peers map[string]string `json:"peers" yaml:"peers"`

	// MountPoint is where the vault tree is mounted.
	MountPoint string `json:"mount_point" yaml:"mount_point"`

	// DBPath is the directory holding metadata.db and blobs/.
	DBPath string `json:"db_path" yaml:"db_path"`

	// LocalVaultName names the vault this node owns.
	LocalVaultName string `json:"local_vault_name" yaml:"local_vault_name"`

	// ShareLocalVault serves the local vault to peers.
	// Default: true
	ShareLocalVault bool `json:"share_local_vault" yaml:"share_local_vault"`

	// BackgroundUpdateInterval is the pull and push period in seconds.
	// Default: 3
	BackgroundUpdateInterval int `json:"background_update_interval" yaml:"background_update_interval"`

	// RPCTimeout bounds each peer request in seconds.
	// Default: 5
	RPCTimeout int `json:"rpc_timeout" yaml:"rpc_timeout"`

	// FetchTimeout bounds on-demand fetches and notifies in seconds.
	// Default: 2
	FetchTimeout int `json:"fetch_timeout" yaml:"fetch_timeout"`

	// BatchSize is the number of entries per pull or notify.
	// Default: 256
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Relay serves replicas of peer vaults to other peers.
	Relay bool `json:"relay" yaml:"relay"`

	// GCInterval is the content garbage collection period in seconds.
	// Default: 300
	GCInterval int `json:"gc_interval" yaml:"gc_interval"`

	// AllowOther lets users other than the mounting user access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool `json:"allow_other" yaml:"allow_other"`
}

// Default returns the configuration that file values are merged into.
func Default() *Config {
	return &Config{
		Peers:                    map[string]string{},
		ShareLocalVault:          true,
		BackgroundUpdateInterval: 3,
		RPCTimeout:               5,
		FetchTimeout:             2,
		BatchSize:                256,
		GCInterval:               300,
	}
}

// Load loads configuration from the file named by MONOVAULT_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your monovault config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads and validates configuration from path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config extension %q (want .json, .jsonc, .yaml or .yml)", filepath.Ext(path))
	}
}

func (c *Config) expandVariables() {
	c.MountPoint = expandVars(c.MountPoint)
	c.DBPath = expandVars(c.DBPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.LocalVaultName == "" {
		errs = append(errs, errors.New("local_vault_name is required"))
	} else if strings.Contains(c.LocalVaultName, "/") {
		errs = append(errs, fmt.Errorf("local_vault_name %q contains '/'", c.LocalVaultName))
	}
	if c.MountPoint == "" {
		errs = append(errs, errors.New("mount_point is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}

	for _, name := range c.PeerNames() {
		switch {
		case name == "":
			errs = append(errs, errors.New("peers: empty vault name"))
		case strings.Contains(name, "/"):
			errs = append(errs, fmt.Errorf("peers: vault name %q contains '/'", name))
		case name == c.LocalVaultName:
			errs = append(errs, fmt.Errorf("peers: %q is the local vault name", name))
		}
		if c.Peers[name] == "" {
			errs = append(errs, fmt.Errorf("peers: %q has no address", name))
		}
	}

	for field, value := range map[string]int{
		"background_update_interval": c.BackgroundUpdateInterval,
		"rpc_timeout":                c.RPCTimeout,
		"fetch_timeout":              c.FetchTimeout,
		"batch_size":                 c.BatchSize,
		"gc_interval":                c.GCInterval,
	} {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", field, value))
		}
	}

	return errors.Join(errs...)
}

// PeerNames returns the peer vault names in sorted order.
func (c *Config) PeerNames() []string {
	names := make([]string, 0, len(c.Peers))
	for name := range c.Peers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// UpdateInterval returns background_update_interval as a duration.
func (c *Config) UpdateInterval() time.Duration { return seconds(c.BackgroundUpdateInterval) }

// RPCTimeoutDuration returns rpc_timeout as a duration.
func (c *Config) RPCTimeoutDuration() time.Duration { return seconds(c.RPCTimeout) }

// FetchTimeoutDuration returns fetch_timeout as a duration.
func (c *Config) FetchTimeoutDuration() time.Duration { return seconds(c.FetchTimeout) }

// GCIntervalDuration returns gc_interval as a duration.
func (c *Config) GCIntervalDuration() time.Duration { return seconds(c.GCInterval) }
