package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flavioaiello/azure-building-blocks/pkg/deploy"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

// Errors.
var (
	ErrMockDeploymentFailed = errors.New("mock deployment failed")
)

// FakeDeployer implements deploy.Deployer in memory.
//
// Records every call for test assertions. Individual deployments can be
// made to fail by name.
// Thread-safe.
type FakeDeployer struct {
	mu sync.Mutex

	subscriptions  []string
	resourceGroups []resources.ResourceGroup
	existing       map[string]bool
	requests       []deploy.Request
	failDeploy     map[string]bool
}

// NewFakeDeployer creates an empty fake deployer.
func NewFakeDeployer() *FakeDeployer {
	return &FakeDeployer{
		existing:   make(map[string]bool),
		failDeploy: make(map[string]bool),
	}
}

// FailDeployment makes the deployment called name fail.
func (d *FakeDeployer) FailDeployment(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failDeploy[name] = true
}

// SetSubscription implements deploy.Deployer.
func (d *FakeDeployer) SetSubscription(_ context.Context, subscriptionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscriptions = append(d.subscriptions, subscriptionID)
	return nil
}

// CreateResourceGroupIfNotExists implements deploy.Deployer. A group is
// recorded once per subscription and name.
func (d *FakeDeployer) CreateResourceGroupIfNotExists(ctx context.Context, rg resources.ResourceGroup) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	key := rg.SubscriptionID + "/" + rg.ResourceGroupName
	if d.existing[key] {
		return nil
	}
	d.existing[key] = true
	d.resourceGroups = append(d.resourceGroups, rg)
	return nil
}

// Deploy implements deploy.Deployer.
func (d *FakeDeployer) Deploy(ctx context.Context, req deploy.Request) (*deploy.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.requests = append(d.requests, req)

	result := &deploy.Result{
		DeploymentName: req.Name,
		Status:         "Succeeded",
		CorrelationID:  uuid.NewString(),
		Duration:       time.Millisecond,
	}
	if d.failDeploy[req.Name] {
		result.Status = "Failed"
		return result, ErrMockDeploymentFailed
	}
	return result, nil
}

// Subscriptions returns the selected subscriptions in call order.
func (d *FakeDeployer) Subscriptions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.subscriptions...)
}

// ResourceGroups returns the created resource groups in call order.
func (d *FakeDeployer) ResourceGroups() []resources.ResourceGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]resources.ResourceGroup(nil), d.resourceGroups...)
}

// Requests returns the deployment requests in call order.
func (d *FakeDeployer) Requests() []deploy.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]deploy.Request(nil), d.requests...)
}

// Verify interface compliance.
var _ deploy.Deployer = (*FakeDeployer)(nil)
