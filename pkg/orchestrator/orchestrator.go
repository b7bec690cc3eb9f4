// Package orchestrator runs the building blocks declared in a parameter file.
//
// For every building block, in declaration order, the orchestrator:
//  1. Looks up the building block type in the registry
//  2. Loads the optional user defaults file of the type
//  3. Processes the settings into template parameters
//  4. Writes the output parameter file
//  5. Optionally deploys: resource groups, pre-deployment hook, template
//     deployment, post-deployment hook
//
// Processing fails fast. Nothing is rolled back.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flavioaiello/azure-building-blocks/pkg/blocks"
	"github.com/flavioaiello/azure-building-blocks/pkg/config"
	"github.com/flavioaiello/azure-building-blocks/pkg/deploy"
	"github.com/flavioaiello/azure-building-blocks/pkg/loader"
	"github.com/flavioaiello/azure-building-blocks/pkg/params"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

// Errors.
var (
	ErrBuildingBlock     = errors.New("building block failed")
	ErrPreDeployment     = errors.New("pre-deployment failed")
	ErrPostDeployment    = errors.New("post-deployment failed")
	ErrNoDeployer        = errors.New("deployment requested without a deployer")
	ErrMissingParameters = errors.New("parameters file is required")
)

// Orchestrator processes and deploys building blocks.
type Orchestrator struct {
	config   *config.Config
	context  resources.Context
	loader   *loader.Loader
	deployer deploy.Deployer
	runner   deploy.Runner
	logger   *zap.Logger
}

// BlockResult is the outcome of one building block.
type BlockResult struct {
	// Index is the 1-based position in the parameter file.
	Index int
	// Type is the registry type of the block.
	Type string
	// OutputFile is the written parameter file, empty when not written.
	OutputFile string
	// Parameters is the output parameter file content.
	Parameters *params.File
	// Processed is the raw processing result.
	Processed *blocks.Result
	// Deployment is set when the block was deployed.
	Deployment *deploy.Result
}

// Result is the outcome of a run.
type Result struct {
	Blocks    []BlockResult
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the run duration.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// New creates an orchestrator. deployer and runner may be nil when nothing
// is deployed.
func New(cfg *config.Config, deployer deploy.Deployer, runner deploy.Runner, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, err := cfg.Context()
	if err != nil {
		return nil, err
	}
	if err := ctx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidContext, err)
	}
	return &Orchestrator{
		config:   cfg,
		context:  ctx,
		loader:   loader.New(cfg.DefaultsDir, logger),
		deployer: deployer,
		runner:   runner,
		logger:   logger,
	}, nil
}

// Run processes every building block of the parameter file at path, writes
// the output parameter files and, when deployNow is set, deploys them.
func (o *Orchestrator) Run(ctx context.Context, path string, deployNow bool) (*Result, error) {
	if deployNow && o.deployer == nil {
		return nil, ErrNoDeployer
	}
	bbs, err := o.buildingBlocks(path)
	if err != nil {
		return nil, err
	}

	result := &Result{StartTime: time.Now()}
	defer func() { result.EndTime = time.Now() }()

	for i, bb := range bbs {
		index := i + 1
		br, err := o.process(index, bb)
		if err != nil {
			return result, err
		}

		br.OutputFile = loader.OutputPath(o.config.OutputDir, path, index)
		if err := loader.WriteParameters(br.OutputFile, br.Parameters); err != nil {
			return result, blockErr(br, err)
		}
		o.logger.Info("Wrote parameter file",
			zap.Int("index", index),
			zap.String("building_block", br.Type),
			zap.String("path", br.OutputFile),
		)

		if deployNow {
			if err := o.deploy(ctx, br); err != nil {
				result.Blocks = append(result.Blocks, *br)
				return result, blockErr(br, err)
			}
		}
		result.Blocks = append(result.Blocks, *br)
	}
	return result, nil
}

// Validate processes every building block of the parameter file at path
// without writing or deploying. Errors of all blocks are joined.
func (o *Orchestrator) Validate(path string) ([]BlockResult, error) {
	bbs, err := o.buildingBlocks(path)
	if err != nil {
		return nil, err
	}
	var (
		out  []BlockResult
		errs []error
	)
	for i, bb := range bbs {
		br, err := o.process(i+1, bb)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, *br)
	}
	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

func (o *Orchestrator) buildingBlocks(path string) ([]params.BuildingBlock, error) {
	if path == "" {
		return nil, ErrMissingParameters
	}
	doc, err := o.loader.LoadParameters(path)
	if err != nil {
		return nil, err
	}
	bbs, err := params.BuildingBlocks(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	o.logger.Info("Loaded building blocks",
		zap.String("path", path),
		zap.Int("count", len(bbs)),
	)
	return bbs, nil
}

// process runs one building block up to its parameter file content.
func (o *Orchestrator) process(index int, bb params.BuildingBlock) (*BlockResult, error) {
	br := &BlockResult{Index: index, Type: bb.Type}

	entry, err := blocks.Lookup(bb.Type)
	if err != nil {
		return nil, blockErr(br, err)
	}
	br.Type = entry.Type

	defaults, err := o.loader.LoadDefaults(entry.DefaultsFilename)
	if err != nil {
		return nil, blockErr(br, err)
	}

	processed, err := entry.Process(blocks.Input{
		Settings: bb.Settings,
		Context:  o.context,
		Defaults: defaults,
	})
	if err != nil {
		return nil, blockErr(br, err)
	}
	br.Processed = processed

	file, err := params.Build(processed, params.Options{KeyVaultID: o.config.KeyVaultID})
	if err != nil {
		return nil, blockErr(br, err)
	}
	br.Parameters = file

	o.logger.Debug("Processed building block",
		zap.Int("index", index),
		zap.String("building_block", entry.Type),
		zap.Strings("parameters", file.Names()),
		zap.Int("resource_groups", len(processed.ResourceGroups)),
	)
	return br, nil
}

// deploy runs the deployment steps of one processed building block.
func (o *Orchestrator) deploy(ctx context.Context, br *BlockResult) error {
	entry, err := blocks.Lookup(br.Type)
	if err != nil {
		return err
	}
	res := br.Processed

	target := o.context.Placement()
	if res.Target != nil {
		target = *res.Target
	}

	if err := o.deployer.SetSubscription(ctx, target.SubscriptionID); err != nil {
		return err
	}
	for _, rg := range res.ResourceGroups {
		if err := o.deployer.CreateResourceGroupIfNotExists(ctx, rg); err != nil {
			return err
		}
	}

	if res.PreDeployment != nil {
		o.logger.Info("Running pre-deployment", zap.String("building_block", br.Type))
		if err := res.PreDeployment(ctx, o.runner); err != nil {
			return fmt.Errorf("%w: %w", ErrPreDeployment, err)
		}
	}

	templateURI := res.TemplateURI
	if templateURI == "" {
		templateURI = o.config.TemplateURI(entry.Template)
	}
	parameters := make(map[string]interface{}, len(br.Parameters.Parameters))
	for k, v := range br.Parameters.Parameters {
		parameters[k] = v
	}

	deployment, err := o.deployer.Deploy(ctx, deploy.Request{
		Name:           deploy.DeploymentName(br.Index, entry.DeploymentName),
		SubscriptionID: target.SubscriptionID,
		ResourceGroup:  target.ResourceGroupName,
		TemplateURI:    templateURI,
		Parameters:     parameters,
		ParametersFile: br.OutputFile,
		Timeout:        o.config.DeploymentTimeout,
	})
	br.Deployment = deployment
	if err != nil {
		return err
	}
	o.logger.Info("Deployment completed",
		zap.String("building_block", br.Type),
		zap.String("deployment", deployment.DeploymentName),
		zap.String("correlation_id", deployment.CorrelationID),
		zap.Duration("duration", deployment.Duration),
	)

	if res.PostDeployment != nil {
		o.logger.Info("Running post-deployment", zap.String("building_block", br.Type))
		if err := res.PostDeployment(ctx, o.runner); err != nil {
			return fmt.Errorf("%w: %w", ErrPostDeployment, err)
		}
	}
	return nil
}

func blockErr(br *BlockResult, err error) error {
	return fmt.Errorf("%w: #%d %s: %w", ErrBuildingBlock, br.Index, br.Type, err)
}
