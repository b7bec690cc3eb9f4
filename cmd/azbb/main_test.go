package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-building-blocks/pkg/blocks"
	"github.com/flavioaiello/azure-building-blocks/pkg/config"
	"github.com/flavioaiello/azure-building-blocks/pkg/deploy"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

// Test constants to avoid literal duplication.
const (
	testSubscriptionID = "00000000-0000-1000-8000-000000000000"
	testResourceGroup  = "test-rg"
	testLocation       = "westus2"
	testParameters     = `{
  "parameters": {
    "buildingBlocks": {
      "value": [
        {"type": "VirtualNetwork", "settings": [{"name": "vnet", "addressPrefixes": ["10.0.0.0/16"], "subnets": [{"name": "web", "addressPrefix": "10.0.1.0/24"}]}]}
      ]
    }
  }
}`
)

func writeParameters(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vnet.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func contextArgs(parametersFile string) []string {
	return []string{"-g", testResourceGroup, "-s", testSubscriptionID, "-l", testLocation, "-p", parametersFile}
}

func TestTypesCmd(t *testing.T) {
	out, _, err := execute(t, "types")
	require.NoError(t, err)
	assert.Equal(t, blocks.Types(), strings.Fields(out))
}

func TestValidateCmd(t *testing.T) {
	path := writeParameters(t, testParameters)
	out, _, err := execute(t, append([]string{"validate"}, contextArgs(path)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "01 VirtualNetwork: valid")
}

func TestValidateCmdReportsErrors(t *testing.T) {
	path := writeParameters(t, strings.Replace(testParameters, "10.0.0.0/16", "10.0.0.0/99", 1))
	_, stderr, err := execute(t, append([]string{"validate"}, contextArgs(path)...)...)
	require.Error(t, err)
	assert.Contains(t, stderr, "addressPrefixes")
}

func TestValidateCmdRequiresContext(t *testing.T) {
	t.Setenv(config.EnvSubscriptionID, "")
	t.Setenv(config.EnvResourceGroup, "")
	t.Setenv(config.EnvLocation, "")
	_, _, err := execute(t, "validate", "-p", writeParameters(t, testParameters))
	assert.ErrorIs(t, err, config.ErrMissingSubscriptionID)
}

func TestRootCmdWritesParameterFiles(t *testing.T) {
	outputDir := t.TempDir()
	args := append(contextArgs(writeParameters(t, testParameters)), "-o", outputDir)
	_, _, err := execute(t, args...)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outputDir, "vnet-output-01.json"))
}

func TestFlagsDefaultToEnvironment(t *testing.T) {
	t.Setenv(config.EnvResourceGroup, "env-rg")
	t.Setenv(config.EnvCloud, resources.AzureChinaCloud)

	cmd := newRootCmd()
	assert.Equal(t, "env-rg", cmd.PersistentFlags().Lookup(flagResourceGroup).DefValue)
	assert.Equal(t, resources.AzureChinaCloud, cmd.PersistentFlags().Lookup(flagCloud).DefValue)
	assert.Equal(t, string(config.DeployModeCLI), cmd.Flags().Lookup(flagDeployMode).DefValue)
}

func TestDeployModeValue(t *testing.T) {
	var mode config.DeployMode
	v := (*deployModeValue)(&mode)

	require.NoError(t, v.Set("ARM"))
	assert.Equal(t, config.DeployModeARM, mode)
	assert.Equal(t, "arm", v.String())

	assert.ErrorIs(t, v.Set("terraform"), config.ErrInvalidDeployMode)
	assert.Equal(t, config.DeployModeARM, mode)
}

func TestNewDeployer(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cfg := &config.Config{Cloud: resources.AzureCloud, DeployMode: config.DeployModeARM}

	deployer, runner, err := newDeployer(context.Background(), cfg, &options{credential: "cli"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &deploy.ARMDeployer{}, deployer)
	assert.IsType(t, &deploy.CLIRunner{}, runner)

	_, _, err = newDeployer(context.Background(), cfg, &options{credential: "client-secret"}, logger)
	assert.Error(t, err)

	cfg.DeployMode = "terraform"
	_, _, err = newDeployer(context.Background(), cfg, &options{}, logger)
	assert.ErrorIs(t, err, deploy.ErrUnknownDeployMode)
}

func TestMaskSubscriptionID(t *testing.T) {
	assert.Equal(t, "00000000-****-****-****-************", maskSubscriptionID(testSubscriptionID))
	assert.Equal(t, "****", maskSubscriptionID("short"))
}
