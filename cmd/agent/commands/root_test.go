package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandRegistersAllSubcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"version", "start", "migrate", "status", "logs", "config"}, names)
}

func TestConfigCommandRegistersSchemaSubcommand(t *testing.T) {
	names := make([]string, 0, len(configCmd.Commands()))
	for _, c := range configCmd.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"schema"}, names)
}

func TestGetConfigFileReflectsPersistentFlag(t *testing.T) {
	cfgFile = ""
	assert.Equal(t, "", GetConfigFile())

	cfgFile = "/etc/agent/config.yaml"
	t.Cleanup(func() { cfgFile = "" })

	assert.Equal(t, "/etc/agent/config.yaml", GetConfigFile())
}
