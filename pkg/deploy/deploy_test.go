package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

// Test constants to avoid literal duplication.
const (
	testSubscriptionID = "00000000-0000-1000-8000-000000000000"
	testResourceGroup  = "test-rg"
	testTemplateURI    = "https://example.com/templates/vm.json"
)

// scriptedRunner records invocations and answers by command prefix.
type scriptedRunner struct {
	calls   [][]string
	outputs map[string]string
	fail    map[string]bool
}

func (r *scriptedRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	r.calls = append(r.calls, args)
	key := strings.Join(args[:2], " ")
	if r.fail[key] {
		return nil, fmt.Errorf("%w: az %s (exit status 1)", ErrCommandFailed, strings.Join(args, " "))
	}
	return []byte(r.outputs[key]), nil
}

func TestConstants(t *testing.T) {
	assert.Equal(t, 30*time.Minute, DefaultDeploymentTimeout)
	assert.Equal(t, 64, MaxDeploymentNameLength)
	assert.Equal(t, 5*time.Second, PollingInterval)
}

func TestDeploymentName(t *testing.T) {
	assert.Equal(t, "bb-01-vm", DeploymentName(1, "vm"))
	assert.Equal(t, "bb-12-vnet", DeploymentName(12, "vnet"))
	assert.LessOrEqual(t, len(DeploymentName(3, strings.Repeat("x", 80))), MaxDeploymentNameLength)
}

func TestResultSucceeded(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		succeeded bool
	}{
		{"succeeded", "Succeeded", true},
		{"failed", "Failed", false},
		{"pending", "Pending", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Result{Status: tt.status}
			assert.Equal(t, tt.succeeded, r.Succeeded())
		})
	}
}

func TestRequestValidate(t *testing.T) {
	err := Request{}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, ErrMissingTemplateURI)

	err = Request{Name: strings.Repeat("n", 65), ResourceGroup: testResourceGroup, TemplateURI: testTemplateURI}.Validate()
	assert.ErrorIs(t, err, ErrInvalidDeployName)
}

func TestCLIDeployerCreatesMissingGroup(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	runner := &scriptedRunner{outputs: map[string]string{"group exists": "false\n"}}
	d := NewCLIDeployer(runner, logger)

	err := d.CreateResourceGroupIfNotExists(context.Background(), resources.ResourceGroup{
		SubscriptionID: testSubscriptionID, ResourceGroupName: testResourceGroup, Location: "westus2",
	})
	require.NoError(t, err)
	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"group", "create", "--name", testResourceGroup, "--location", "westus2",
		"--subscription", testSubscriptionID}, runner.calls[1])
}

func TestCLIDeployerSkipsExistingGroup(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	runner := &scriptedRunner{outputs: map[string]string{"group exists": "true"}}
	d := NewCLIDeployer(runner, logger)

	require.NoError(t, d.CreateResourceGroupIfNotExists(context.Background(), resources.ResourceGroup{
		SubscriptionID: testSubscriptionID, ResourceGroupName: testResourceGroup,
	}))
	assert.Len(t, runner.calls, 1)
}

func TestCLIDeployerDeploy(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	runner := &scriptedRunner{outputs: map[string]string{
		"deployment group": `{"properties":{"correlationId":"abc","provisioningState":"Succeeded"}}`,
	}}
	d := NewCLIDeployer(runner, logger)

	result, err := d.Deploy(context.Background(), Request{
		Name:           "bb-01-vm",
		SubscriptionID: testSubscriptionID,
		ResourceGroup:  testResourceGroup,
		TemplateURI:    testTemplateURI,
		ParametersFile: "out-output-01.json",
	})
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "abc", result.CorrelationID)
	assert.Contains(t, runner.calls[0], "@out-output-01.json")
	assert.Contains(t, runner.calls[0], string(ModeIncremental))
}

func TestCLIDeployerDeployInlineParameters(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	runner := &scriptedRunner{}
	d := NewCLIDeployer(runner, logger)

	_, err := d.Deploy(context.Background(), Request{
		Name:          "bb-01-vm",
		ResourceGroup: testResourceGroup,
		TemplateURI:   testTemplateURI,
		Parameters:    map[string]interface{}{"a": map[string]interface{}{"value": 1}},
	})
	require.NoError(t, err)
	assert.Contains(t, runner.calls[0], `{"a":{"value":1}}`)
}

func TestCLIDeployerFailsFast(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	runner := &scriptedRunner{fail: map[string]bool{"deployment group": true}}
	d := NewCLIDeployer(runner, logger)

	result, err := d.Deploy(context.Background(), Request{
		Name: "bb-01-vm", ResourceGroup: testResourceGroup, TemplateURI: testTemplateURI,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
	assert.Equal(t, "Failed", result.Status)
}

func TestARMDeployerRequiresSubscription(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	d := NewARMDeployer(nil, cloud.AzurePublic, logger)

	_, err := d.Deploy(context.Background(), Request{
		Name: "bb-01-vm", ResourceGroup: testResourceGroup, TemplateURI: testTemplateURI,
	})
	assert.ErrorIs(t, err, ErrNoSubscription)
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "", safeString(nil))

	s := "test"
	assert.Equal(t, "test", safeString(&s))
}
