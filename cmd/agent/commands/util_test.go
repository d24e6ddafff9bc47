package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDefaultStateDirHonorsXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")

	assert.Equal(t, "/tmp/xdg-state/agent", GetDefaultStateDir())
}

func TestGetDefaultPidAndLogFilesNestUnderStateDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")

	assert.Equal(t, filepath.Join("/tmp/xdg-state", "agent", "agent.pid"), GetDefaultPidFile())
	assert.Equal(t, filepath.Join("/tmp/xdg-state", "agent", "agent.log"), GetDefaultLogFile())
}

func TestGetConfigSourceReportsExplicitPath(t *testing.T) {
	assert.Equal(t, "/etc/agent/config.yaml", getConfigSource("/etc/agent/config.yaml"))
}

func TestGetConfigSourceReportsDefaultsWhenEmpty(t *testing.T) {
	assert.Equal(t, "defaults", getConfigSource(""))
}
