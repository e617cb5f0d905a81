package core

// Environment handed from the service to the daemon it spawns
const (
	// DaemonAliasEnv makes the binary run the hidden daemon command with
	// the positional launch arguments.
	DaemonAliasEnv = "KEEPALIVE_DAEMON_ALIAS"
	// ServicePIDEnv carries the service PID for platforms without peer credentials.
	ServicePIDEnv = "KEEPALIVE_SERVICE_PID"
	// ConfigPathEnv points the daemon at the service's config directory.
	ConfigPathEnv = "KEEPALIVE_CONFIG_PATH"
)
