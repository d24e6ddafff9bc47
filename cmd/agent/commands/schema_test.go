package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSchemaPrintsValidJSONToStdout(t *testing.T) {
	origOutput := schemaOutput
	schemaOutput = ""
	t.Cleanup(func() { schemaOutput = origOutput })

	var out bytes.Buffer
	schemaCmd.SetOut(&out)

	require.NoError(t, runSchema(schemaCmd, nil))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "Pennsieve Agent Configuration", doc["title"])
}

func TestRunSchemaWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.schema.json")

	origOutput := schemaOutput
	schemaOutput = path
	t.Cleanup(func() { schemaOutput = origOutput })

	var out bytes.Buffer
	schemaCmd.SetOut(&out)

	require.NoError(t, runSchema(schemaCmd, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
}
