package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

// ARMDeployer deploys through the Azure Resource Manager SDK.
type ARMDeployer struct {
	credential     azcore.TokenCredential
	options        *arm.ClientOptions
	logger         *zap.Logger
	subscriptionID string
	clients        map[string]*armClients
}

type armClients struct {
	groups      *armresources.ResourceGroupsClient
	deployments *armresources.DeploymentsClient
}

// NewARMDeployer creates a deployer for the given cloud.
func NewARMDeployer(credential azcore.TokenCredential, cloudConfig cloud.Configuration, logger *zap.Logger) *ARMDeployer {
	return &ARMDeployer{
		credential: credential,
		options: &arm.ClientOptions{
			ClientOptions: policy.ClientOptions{Cloud: cloudConfig},
		},
		logger:  logger,
		clients: make(map[string]*armClients),
	}
}

// SetSubscription selects the default subscription.
func (d *ARMDeployer) SetSubscription(_ context.Context, subscriptionID string) error {
	if _, err := d.clientsFor(subscriptionID); err != nil {
		return err
	}
	d.subscriptionID = subscriptionID
	return nil
}

func (d *ARMDeployer) clientsFor(subscriptionID string) (*armClients, error) {
	if subscriptionID == "" {
		subscriptionID = d.subscriptionID
	}
	if subscriptionID == "" {
		return nil, ErrNoSubscription
	}
	if c, ok := d.clients[subscriptionID]; ok {
		return c, nil
	}

	groups, err := armresources.NewResourceGroupsClient(subscriptionID, d.credential, d.options)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource groups client: %w", err)
	}
	deployments, err := armresources.NewDeploymentsClient(subscriptionID, d.credential, d.options)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployments client: %w", err)
	}

	c := &armClients{groups: groups, deployments: deployments}
	d.clients[subscriptionID] = c
	return c, nil
}

// CreateResourceGroupIfNotExists checks for rg and creates it when absent.
func (d *ARMDeployer) CreateResourceGroupIfNotExists(ctx context.Context, rg resources.ResourceGroup) error {
	c, err := d.clientsFor(rg.SubscriptionID)
	if err != nil {
		return err
	}

	exists, err := c.groups.CheckExistence(ctx, rg.ResourceGroupName, nil)
	if err != nil {
		return fmt.Errorf("failed to check resource group %s: %w", rg.ResourceGroupName, err)
	}
	if exists.Success {
		return nil
	}

	d.logger.Info("Creating resource group",
		zap.String("resource_group", rg.ResourceGroupName),
		zap.String("subscription_id", rg.SubscriptionID),
		zap.String("location", rg.Location),
	)
	_, err = c.groups.CreateOrUpdate(ctx, rg.ResourceGroupName, armresources.ResourceGroup{
		Location: to.Ptr(rg.Location),
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to create resource group %s: %w", rg.ResourceGroupName, err)
	}
	return nil
}

// Deploy starts a linked-template deployment and polls it to completion.
func (d *ARMDeployer) Deploy(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := d.clientsFor(req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	deployCtx, cancel := context.WithTimeout(ctx, req.timeout())
	defer cancel()

	startTime := time.Now()
	result := &Result{DeploymentName: req.Name, Status: "Pending"}

	d.logger.Info("Starting deployment",
		zap.String("name", req.Name),
		zap.String("resource_group", req.ResourceGroup),
		zap.String("mode", string(req.mode())),
	)

	deployment := armresources.Deployment{
		Properties: &armresources.DeploymentProperties{
			TemplateLink: &armresources.TemplateLink{URI: to.Ptr(req.TemplateURI)},
			Parameters:   req.Parameters,
			Mode:         to.Ptr(armresources.DeploymentMode(req.mode())),
		},
	}

	poller, err := c.deployments.BeginCreateOrUpdate(deployCtx, req.ResourceGroup, req.Name, deployment, nil)
	if err != nil {
		result.Status = "Failed"
		result.Duration = time.Since(startTime)
		return result, fmt.Errorf("failed to start deployment: %w", err)
	}

	resp, err := poller.PollUntilDone(deployCtx, &runtime.PollUntilDoneOptions{Frequency: PollingInterval})
	result.Duration = time.Since(startTime)
	if err != nil {
		result.Status = "Failed"
		if errors.Is(err, context.DeadlineExceeded) {
			return result, ErrDeploymentTimeout
		}
		return result, fmt.Errorf("%w: %v", ErrDeploymentFailed, err)
	}

	if resp.Properties != nil {
		result.CorrelationID = safeString(resp.Properties.CorrelationID)
		if resp.Properties.ProvisioningState != nil {
			result.Status = string(*resp.Properties.ProvisioningState)
		}
	}
	if result.Status == "Pending" {
		result.Status = string(armresources.ProvisioningStateSucceeded)
	}
	if !result.Succeeded() {
		return result, fmt.Errorf("%w: %s", ErrDeploymentFailed, result.Status)
	}

	d.logger.Info("Deployment succeeded",
		zap.String("name", req.Name),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func safeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
