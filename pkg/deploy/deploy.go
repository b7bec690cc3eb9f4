// Package deploy creates resource groups and runs template deployments,
// either through the az CLI or directly against Azure Resource Manager.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

// Constants for deployment execution.
const (
	DefaultDeploymentTimeout = 30 * time.Minute
	MaxDeploymentNameLength  = 64
	PollingInterval          = 5 * time.Second
)

// DeploymentMode determines deployment behavior.
type DeploymentMode string

const (
	ModeIncremental DeploymentMode = "Incremental"
	ModeComplete    DeploymentMode = "Complete"
)

// Errors.
var (
	ErrCommandFailed      = errors.New("command failed")
	ErrDeploymentFailed   = errors.New("deployment failed")
	ErrDeploymentTimeout  = errors.New("deployment timed out")
	ErrInvalidRequest     = errors.New("invalid deployment request")
	ErrNoSubscription     = errors.New("no subscription selected")
	ErrUnknownDeployMode  = errors.New("unknown deploy mode")
	ErrInvalidDeployName  = errors.New("deployment name exceeds maximum length")
	ErrMissingTemplateURI = errors.New("template URI is required")
)

// Request describes one template deployment into a resource group.
type Request struct {
	// Name is the deployment name.
	Name string
	// SubscriptionID and ResourceGroup locate the deployment.
	SubscriptionID string
	ResourceGroup  string
	// TemplateURI is the linked template to deploy.
	TemplateURI string
	// Parameters is the "parameters" section of the parameter file.
	Parameters map[string]interface{}
	// ParametersFile is the parameter file on disk, used by the CLI deployer.
	ParametersFile string
	// Mode defaults to ModeIncremental.
	Mode DeploymentMode
	// Timeout defaults to DefaultDeploymentTimeout.
	Timeout time.Duration
}

// Validate checks the request for required fields.
func (r Request) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, fmt.Errorf("%w: name is required", ErrInvalidRequest))
	} else if len(r.Name) > MaxDeploymentNameLength {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidDeployName, r.Name))
	}
	if strings.TrimSpace(r.ResourceGroup) == "" {
		errs = append(errs, fmt.Errorf("%w: resource group is required", ErrInvalidRequest))
	}
	if strings.TrimSpace(r.TemplateURI) == "" {
		errs = append(errs, ErrMissingTemplateURI)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (r Request) mode() DeploymentMode {
	if r.Mode == "" {
		return ModeIncremental
	}
	return r.Mode
}

func (r Request) timeout() time.Duration {
	if r.Timeout == 0 {
		return DefaultDeploymentTimeout
	}
	return r.Timeout
}

// Result contains the outcome of a deployment.
type Result struct {
	DeploymentName string        `json:"deploymentName"`
	Status         string        `json:"status"`
	CorrelationID  string        `json:"correlationId,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Succeeded returns true if deployment succeeded.
func (r *Result) Succeeded() bool {
	return r.Status == "Succeeded"
}

// Deployer prepares resource groups and deploys templates. Every call blocks
// until the operation completes and fails fast; nothing is retried or rolled back.
type Deployer interface {
	// SetSubscription selects the subscription for subsequent calls.
	SetSubscription(ctx context.Context, subscriptionID string) error
	// CreateResourceGroupIfNotExists creates rg unless it already exists.
	CreateResourceGroupIfNotExists(ctx context.Context, rg resources.ResourceGroup) error
	// Deploy runs one deployment to completion.
	Deploy(ctx context.Context, req Request) (*Result, error)
}

// DeploymentName builds the name of the i-th (1-based) building-block
// deployment, e.g. "bb-01-vm".
func DeploymentName(index int, name string) string {
	n := fmt.Sprintf("bb-%02d-%s", index, name)
	if len(n) > MaxDeploymentNameLength {
		n = n[:MaxDeploymentNameLength]
	}
	return n
}
