package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-building-blocks/pkg/params"
)

// Test constants to avoid literal duplication.
const (
	testDefaultsFile = "virtualNetworkSettings.json"
	testParameters   = `{
  "$schema": "https://schema.management.azure.com/schemas/2015-01-01/deploymentParameters.json#",
  "contentVersion": "1.0.0.0",
  "parameters": {
    "buildingBlocks": {
      "value": [
        {"type": "VirtualNetwork", "settings": [{"name": "vnet", "addressPrefixes": ["10.0.0.0/16"]}]}
      ]
    }
  }
}`
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParametersJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vnet.json", testParameters)

	logger, _ := zap.NewDevelopment()
	doc, err := New("", logger).LoadParameters(path)
	require.NoError(t, err)

	bbs, err := params.BuildingBlocks(doc)
	require.NoError(t, err)
	require.Len(t, bbs, 1)
	assert.Equal(t, "VirtualNetwork", bbs[0].Type)
}

func TestLoadParametersYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vnet.yaml", `
parameters:
  buildingBlocks:
    value:
      - type: RouteTable
        settings:
          name: rt
          routes:
            - name: default
              addressPrefix: 0.0.0.0/0
              nextHop: 10.0.0.4
`)
	doc, err := New("", nil).LoadParameters(path)
	require.NoError(t, err)
	bbs, err := params.BuildingBlocks(doc)
	require.NoError(t, err)
	require.Len(t, bbs, 1)
	settings, ok := bbs[0].Settings.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "rt", settings["name"])
}

func TestLoadParametersErrors(t *testing.T) {
	dir := t.TempDir()
	l := New("", nil)

	_, err := l.LoadParameters(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = l.LoadParameters(writeFile(t, dir, "bad.json", `{"parameters": [`))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = l.LoadParameters(writeFile(t, dir, "list.json", `[1, 2]`))
	assert.ErrorIs(t, err, ErrNotAnObject)

	big := writeFile(t, dir, "big.json", `{"a": "`+strings.Repeat("x", MaxParameterFileSizeBytes)+`"}`)
	_, err = l.LoadParameters(big)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, testDefaultsFile, `{"dnsServers": ["10.0.0.4"]}`)

	l := New(dir, nil)
	doc, err := l.LoadDefaults(testDefaultsFile)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"10.0.0.4"}, doc["dnsServers"])

	doc, err = l.LoadDefaults("routeTableSettings.json")
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, err = l.LoadDefaults("../" + testDefaultsFile)
	assert.ErrorIs(t, err, ErrFileNotFound)

	doc, err = New("", nil).LoadDefaults(testDefaultsFile)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoadDefaultsTooLarge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, testDefaultsFile, `{"a": "`+strings.Repeat("x", MaxDefaultsFileSizeBytes)+`"}`)
	_, err := New(dir, nil).LoadDefaults(testDefaultsFile)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "vnet-output-01.json"), OutputPath("out", "/tmp/vnet.json", 1))
	assert.Equal(t, filepath.Join("out", "spoke.params-output-12.json"), OutputPath("out", "spoke.params.yaml", 12))
}

func TestWriteParameters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "vnet-output-01.json")

	f := params.New()
	f.Parameters["virtualNetworks"] = params.Value{Value: []interface{}{}}
	require.NoError(t, WriteParameters(path, f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, params.Schema, decoded["$schema"])
	assert.Equal(t, params.ContentVersion, decoded["contentVersion"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	blocker := writeFile(t, dir, "file", "x")
	err = WriteParameters(filepath.Join(blocker, "out.json"), f)
	assert.ErrorIs(t, err, ErrInvalidOutputDir)
}
