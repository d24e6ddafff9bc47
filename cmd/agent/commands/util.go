package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pennsieve/agent/internal/config"
	"github.com/pennsieve/agent/internal/logger"
)

// InitLogger initializes the process-wide structured logger from
// configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// GetDefaultStateDir returns the default state directory for PID and
// log files.
func GetDefaultStateDir() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "/tmp"
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, "agent")
}

// GetDefaultPidFile returns the default PID file path.
func GetDefaultPidFile() string {
	return filepath.Join(GetDefaultStateDir(), "agent.pid")
}

// GetDefaultLogFile returns the default log file path for daemon mode.
func GetDefaultLogFile() string {
	return filepath.Join(GetDefaultStateDir(), "agent.log")
}

// getConfigSource describes where the resolved configuration came
// from, for a log line.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return "defaults"
}
