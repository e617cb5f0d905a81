package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `# Test configuration
verbose         = 1
namespace       = "com.example.agent"
state_dir       = "/var/lib/agent"
socket_dir      = "/run/agent"
metrics_address = "127.0.0.1:9464"

launcher {
  retry_interval    = "250ms"
  heartbeat_seconds = 10
  source            = "/usr/libexec/agent-daemon"
}

relaunch {
  command        = "systemctl %s restart agent.service"
  user_qualifier = "--user"
}

service {
  command = ["/usr/bin/agent", "--foreground"]
}
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.ConfigPath != filepath.Dir(path) {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
	if cfg.Verbose != 1 {
		t.Errorf("Verbose = %d", cfg.Verbose)
	}
	if cfg.Namespace != "com.example.agent" {
		t.Errorf("Namespace = %q", cfg.Namespace)
	}
	if cfg.StateDir != "/var/lib/agent" || cfg.SocketDir != "/run/agent" {
		t.Errorf("dirs = %q, %q", cfg.StateDir, cfg.SocketDir)
	}
	if cfg.MetricsAddress != "127.0.0.1:9464" {
		t.Errorf("MetricsAddress = %q", cfg.MetricsAddress)
	}
	if cfg.RetryIntervalDuration() != 250*time.Millisecond {
		t.Errorf("RetryInterval = %v", cfg.RetryIntervalDuration())
	}
	if cfg.Launcher.HeartbeatSeconds != 10 {
		t.Errorf("HeartbeatSeconds = %d", cfg.Launcher.HeartbeatSeconds)
	}
	if cfg.Launcher.Source != "/usr/libexec/agent-daemon" {
		t.Errorf("Source = %q", cfg.Launcher.Source)
	}
	if cfg.Relaunch.Command != "systemctl %s restart agent.service" || cfg.Relaunch.UserQualifier != "--user" {
		t.Errorf("Relaunch = %+v", cfg.Relaunch)
	}
	if len(cfg.Service.Command) != 2 || cfg.Service.Command[1] != "--foreground" {
		t.Errorf("Service.Command = %q", cfg.Service.Command)
	}

	if cfg.ExecutablePath() != "/var/lib/agent/keepalive" {
		t.Errorf("ExecutablePath = %q", cfg.ExecutablePath())
	}
	if cfg.LockPath() != "/var/lib/agent/service.lock" {
		t.Errorf("LockPath = %q", cfg.LockPath())
	}
	if cfg.JournalPath() != "/var/lib/agent/keepalive.db" {
		t.Errorf("JournalPath = %q", cfg.JournalPath())
	}
	if cfg.TokenFilePath() != "/var/lib/agent/daemon.token" {
		t.Errorf("TokenFilePath = %q", cfg.TokenFilePath())
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	path := writeConfig(t, "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Namespace != DefaultNamespace {
		t.Errorf("Namespace = %q", cfg.Namespace)
	}
	if cfg.StateDir != "/xdg/state/keepalive" {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
	if cfg.SocketDir != "" {
		t.Errorf("SocketDir = %q, want abstract default", cfg.SocketDir)
	}
	if cfg.RetryIntervalDuration() != time.Second {
		t.Errorf("RetryInterval = %v", cfg.RetryIntervalDuration())
	}
	if cfg.Launcher.HeartbeatSeconds != 5 {
		t.Errorf("HeartbeatSeconds = %d", cfg.Launcher.HeartbeatSeconds)
	}
	if cfg.Relaunch.Command != "systemctl %s restart keepalive.service" || cfg.Relaunch.UserQualifier != "--user" {
		t.Errorf("Relaunch = %+v", cfg.Relaunch)
	}
}

func TestLoadConfigEmptyQualifier(t *testing.T) {
	path := writeConfig(t, `
relaunch {
  command        = "service keepalive restart %s"
  user_qualifier = ""
}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Relaunch.UserQualifier != "" {
		t.Errorf("UserQualifier = %q, want explicit empty", cfg.Relaunch.UserQualifier)
	}
}

func TestLoadConfigExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfig(t, `state_dir = "~/ka"`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StateDir != filepath.Join(home, "ka") {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax error", `namespace = `, "failed to parse HCL config"},
		{"unknown attribute", `colour = "blue"`, "failed to parse HCL config"},
		{"no placeholder", "relaunch {\n  command = \"systemctl restart x\"\n}\n", "exactly one %s"},
		{"two placeholders", "relaunch {\n  command = \"%s restart %s\"\n}\n", "exactly one %s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOrDefault(dir)
	if err != nil {
		t.Fatalf("LoadOrDefault without a file failed: %v", err)
	}
	if cfg.ConfigPath != dir || cfg.Namespace != DefaultNamespace {
		t.Errorf("cfg = %+v", cfg)
	}

	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`namespace = "x"`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOrDefault(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Namespace != "x" {
		t.Errorf("Namespace = %q", cfg.Namespace)
	}
}

func TestRetryIntervalDurationInvalid(t *testing.T) {
	cfg := GetDefaultConfig()
	for _, v := range []string{"soon", "-1s", "0s", ""} {
		cfg.Launcher.RetryInterval = v
		if got := cfg.RetryIntervalDuration(); got != time.Second {
			t.Errorf("RetryInterval %q = %v, want 1s fallback", v, got)
		}
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	if got := DefaultConfigPath(); got != "/xdg/config/keepalive" {
		t.Errorf("DefaultConfigPath = %q", got)
	}

	t.Setenv(ConfigPathEnv, "/etc/keepalive")
	if got := DefaultConfigPath(); got != "/etc/keepalive" {
		t.Errorf("DefaultConfigPath with env = %q", got)
	}
}
