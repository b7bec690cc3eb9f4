//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-building-blocks/pkg/auth"
	"github.com/flavioaiello/azure-building-blocks/pkg/config"
	"github.com/flavioaiello/azure-building-blocks/pkg/deploy"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

const (
	testTimeout       = 10 * time.Minute
	envTemplateURI    = "AZBB_INTEGRATION_TEMPLATE_URI"
	defaultTestRegion = "westeurope"
)

func skipIfNoCredentials(t *testing.T) {
	t.Helper()
	if os.Getenv(config.EnvSubscriptionID) == "" || os.Getenv(config.EnvResourceGroup) == "" {
		t.Skip("AZURE_SUBSCRIPTION_ID or AZBB_RESOURCE_GROUP not set, skipping integration test")
	}
}

func newDeployer(t *testing.T) (*deploy.ARMDeployer, resources.Context) {
	t.Helper()
	cfg := config.LoadFromEnv()
	if cfg.Location == "" {
		cfg.Location = defaultTestRegion
	}
	require.NoError(t, cfg.Validate())
	bbCtx, err := cfg.Context()
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	cred, err := auth.NewCredential(auth.Options{Kind: auth.KindDefault, Cloud: bbCtx.Cloud.Configuration}, logger)
	require.NoError(t, err)
	return deploy.NewARMDeployer(cred, bbCtx.Cloud.Configuration, logger), bbCtx
}

func TestCredentialToken(t *testing.T) {
	skipIfNoCredentials(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	cfg := config.LoadFromEnv()
	bbCtx, err := cfg.Context()
	require.NoError(t, err)

	cred, err := auth.NewCredential(auth.Options{Cloud: bbCtx.Cloud.Configuration}, nil)
	require.NoError(t, err)
	token, err := cred.GetToken(ctx, auth.TokenOptions(bbCtx.Cloud.Configuration))
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
}

func TestARMDeployerExistingResourceGroup(t *testing.T) {
	skipIfNoCredentials(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	d, bbCtx := newDeployer(t)
	require.NoError(t, d.SetSubscription(ctx, bbCtx.SubscriptionID))
	require.NoError(t, d.CreateResourceGroupIfNotExists(ctx, bbCtx.Placement()))
}

func TestARMDeployerDeploy(t *testing.T) {
	skipIfNoCredentials(t)
	templateURI := os.Getenv(envTemplateURI)
	if templateURI == "" {
		t.Skip("AZBB_INTEGRATION_TEMPLATE_URI not set, skipping deployment test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	d, bbCtx := newDeployer(t)
	require.NoError(t, d.SetSubscription(ctx, bbCtx.SubscriptionID))

	result, err := d.Deploy(ctx, deploy.Request{
		Name:          deploy.DeploymentName(1, "it-"+uuid.NewString()[:8]),
		ResourceGroup: bbCtx.ResourceGroupName,
		TemplateURI:   templateURI,
		Parameters:    map[string]interface{}{},
		Timeout:       testTimeout,
	})
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.NotEmpty(t, result.CorrelationID)
}
