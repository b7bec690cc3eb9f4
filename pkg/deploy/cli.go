package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

// CLIDeployer deploys through the az CLI.
type CLIDeployer struct {
	runner Runner
	logger *zap.Logger
}

// NewCLIDeployer creates a deployer running az commands through runner.
func NewCLIDeployer(runner Runner, logger *zap.Logger) *CLIDeployer {
	return &CLIDeployer{runner: runner, logger: logger}
}

// SetSubscription runs "az account set".
func (d *CLIDeployer) SetSubscription(ctx context.Context, subscriptionID string) error {
	_, err := d.runner.Run(ctx, "account", "set", "--subscription", subscriptionID)
	return err
}

// CreateResourceGroupIfNotExists runs "az group exists" and "az group create" when needed.
func (d *CLIDeployer) CreateResourceGroupIfNotExists(ctx context.Context, rg resources.ResourceGroup) error {
	out, err := d.runner.Run(ctx, "group", "exists",
		"--name", rg.ResourceGroupName,
		"--subscription", rg.SubscriptionID,
	)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(out)) == "true" {
		d.logger.Debug("Resource group exists",
			zap.String("resource_group", rg.ResourceGroupName),
			zap.String("subscription_id", rg.SubscriptionID),
		)
		return nil
	}

	d.logger.Info("Creating resource group",
		zap.String("resource_group", rg.ResourceGroupName),
		zap.String("subscription_id", rg.SubscriptionID),
		zap.String("location", rg.Location),
	)
	_, err = d.runner.Run(ctx, "group", "create",
		"--name", rg.ResourceGroupName,
		"--location", rg.Location,
		"--subscription", rg.SubscriptionID,
	)
	return err
}

// cliDeployment is the subset of "az deployment group create" output we read.
type cliDeployment struct {
	Properties struct {
		CorrelationID     string `json:"correlationId"`
		ProvisioningState string `json:"provisioningState"`
	} `json:"properties"`
}

// Deploy runs "az deployment group create" with a linked template.
func (d *CLIDeployer) Deploy(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	parameters := "@" + req.ParametersFile
	if req.ParametersFile == "" {
		data, err := json.Marshal(req.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameters: %w", err)
		}
		parameters = string(data)
	}

	args := []string{"deployment", "group", "create",
		"--name", req.Name,
		"--resource-group", req.ResourceGroup,
		"--template-uri", req.TemplateURI,
		"--parameters", parameters,
		"--mode", string(req.mode()),
	}
	if req.SubscriptionID != "" {
		args = append(args, "--subscription", req.SubscriptionID)
	}

	deployCtx, cancel := context.WithTimeout(ctx, req.timeout())
	defer cancel()

	startTime := time.Now()
	d.logger.Info("Starting deployment",
		zap.String("name", req.Name),
		zap.String("resource_group", req.ResourceGroup),
		zap.String("mode", string(req.mode())),
	)

	out, err := d.runner.Run(deployCtx, args...)
	if err != nil {
		return &Result{DeploymentName: req.Name, Status: "Failed", Duration: time.Since(startTime)}, err
	}

	result := &Result{DeploymentName: req.Name, Status: "Succeeded", Duration: time.Since(startTime)}
	var parsed cliDeployment
	if json.Unmarshal(out, &parsed) == nil {
		result.CorrelationID = parsed.Properties.CorrelationID
		if parsed.Properties.ProvisioningState != "" {
			result.Status = parsed.Properties.ProvisioningState
		}
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
