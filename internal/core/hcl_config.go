package core

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	ConfigFileName   = "config.hcl"
	ExecutableName   = "keepalive"
	LockFileName     = "service.lock"
	JournalFileName  = "keepalive.db"
	TokenFileName    = "daemon.token"
	DaemonLogName    = "daemon.log"
	DefaultNamespace = "dev.olrik.keepalive"
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete keepalive configuration
type Configuration struct {
	ConfigPath     string // Directory containing config files
	Verbose        int    // Verbosity level
	Namespace      string // Prefix of every rendezvous socket name
	StateDir       string // Private storage for the daemon image, journal and lock files
	SocketDir      string // Filesystem socket directory; empty selects the abstract namespace where available
	MetricsAddress string // Listen address for /metrics; empty disables the endpoint
	Launcher       LauncherConfig
	Relaunch       RelaunchConfig
	Service        ServiceConfig
}

// LauncherConfig controls how the daemon is installed and spawned
type LauncherConfig struct {
	RetryInterval    string // Fixed delay between failed launch attempts
	HeartbeatSeconds int    // Heartbeat interval handed to the daemon
	Source           string // Executable image to install; empty means the running binary
}

// RelaunchConfig describes the directive the daemon runs to revive the service
type RelaunchConfig struct {
	Command       string // Template with a single %s for the user-scope qualifier
	UserQualifier string // Substituted when the host supports user-scoped services
}

// ServiceConfig describes an optional workload kept alive next to the watchdog
type ServiceConfig struct {
	Command []string
}

// HCL parsing structs

type hclConfig struct {
	Verbose        int          `hcl:"verbose,optional"`
	Namespace      string       `hcl:"namespace,optional"`
	StateDir       string       `hcl:"state_dir,optional"`
	SocketDir      string       `hcl:"socket_dir,optional"`
	MetricsAddress string       `hcl:"metrics_address,optional"`
	Launcher       *hclLauncher `hcl:"launcher,block"`
	Relaunch       *hclRelaunch `hcl:"relaunch,block"`
	Service        *hclService  `hcl:"service,block"`
}

type hclLauncher struct {
	RetryInterval    string `hcl:"retry_interval,optional"`
	HeartbeatSeconds int    `hcl:"heartbeat_seconds,optional"`
	Source           string `hcl:"source,optional"`
}

type hclRelaunch struct {
	Command       string  `hcl:"command,optional"`
	UserQualifier *string `hcl:"user_qualifier,optional"`
}

type hclService struct {
	Command []string `hcl:"command,optional"`
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	if err := hclsimple.DecodeFile(filename, nil, &hclCfg); err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.ConfigPath = filepath.Dir(filename)
	cfg.Verbose = hclCfg.Verbose

	if hclCfg.Namespace != "" {
		cfg.Namespace = hclCfg.Namespace
	}
	if hclCfg.StateDir != "" {
		cfg.StateDir = expandHome(hclCfg.StateDir)
	}
	cfg.SocketDir = expandHome(hclCfg.SocketDir)
	cfg.MetricsAddress = hclCfg.MetricsAddress

	if hclCfg.Launcher != nil {
		if hclCfg.Launcher.RetryInterval != "" {
			cfg.Launcher.RetryInterval = hclCfg.Launcher.RetryInterval
		}
		if hclCfg.Launcher.HeartbeatSeconds > 0 {
			cfg.Launcher.HeartbeatSeconds = hclCfg.Launcher.HeartbeatSeconds
		}
		cfg.Launcher.Source = expandHome(hclCfg.Launcher.Source)
	}

	if hclCfg.Relaunch != nil {
		if hclCfg.Relaunch.Command != "" {
			cfg.Relaunch.Command = hclCfg.Relaunch.Command
		}
		// An explicit empty qualifier is allowed, so only nil keeps the default
		if hclCfg.Relaunch.UserQualifier != nil {
			cfg.Relaunch.UserQualifier = *hclCfg.Relaunch.UserQualifier
		}
	}

	if hclCfg.Service != nil {
		cfg.Service.Command = hclCfg.Service.Command
	}

	if strings.Count(cfg.Relaunch.Command, "%s") != 1 {
		return nil, fmt.Errorf("relaunch command must contain exactly one %%s placeholder: %q", cfg.Relaunch.Command)
	}

	return cfg, nil
}

// LoadOrDefault loads config.hcl from configPath, falling back to defaults when no file exists
func LoadOrDefault(configPath string) (*Configuration, error) {
	filename := filepath.Join(configPath, ConfigFileName)
	if !ConfigExists(filename) {
		cfg := GetDefaultConfig()
		cfg.ConfigPath = configPath
		return cfg, nil
	}
	return LoadConfig(filename)
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Namespace: DefaultNamespace,
		StateDir:  defaultStateDir(),
		Launcher: LauncherConfig{
			RetryInterval:    "1s",
			HeartbeatSeconds: 5,
		},
		Relaunch: RelaunchConfig{
			Command:       "systemctl %s restart keepalive.service",
			UserQualifier: "--user",
		},
	}
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}

// RetryIntervalDuration parses the launcher retry interval, falling back to one second
func (c *Configuration) RetryIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Launcher.RetryInterval)
	if err != nil || d <= 0 {
		slog.Error(fmt.Sprintf("Invalid retry_interval config %q, using default 1s", c.Launcher.RetryInterval))
		return time.Second
	}
	return d
}

func (c *Configuration) ExecutablePath() string {
	return filepath.Join(c.StateDir, ExecutableName)
}

func (c *Configuration) LockPath() string {
	return filepath.Join(c.StateDir, LockFileName)
}

func (c *Configuration) JournalPath() string {
	return filepath.Join(c.StateDir, JournalFileName)
}

func (c *Configuration) TokenFilePath() string {
	return filepath.Join(c.StateDir, TokenFileName)
}

func (c *Configuration) DaemonLogPath() string {
	return filepath.Join(c.StateDir, DaemonLogName)
}

// DefaultConfigPath is the config directory used without --config-path
func DefaultConfigPath() string {
	if dir := os.Getenv(ConfigPathEnv); dir != "" {
		return dir
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "keepalive")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "keepalive")
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "keepalive")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "keepalive")
	}
	return filepath.Join(homeDir, ".local", "state", "keepalive")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
