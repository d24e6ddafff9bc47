package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennsieve/agent/internal/version"
)

func TestVersionCommandPrintsVersion(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)

	err := versionCmd.RunE(versionCmd, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "agent "+version.Version)
}
