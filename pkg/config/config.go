// Package config provides configuration management with validation.
//
// Values are read from the environment first; command-line flags override
// them before Validate runs.
//
// SECURITY: All inputs are validated at the boundary (fail-fast).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

// DeployMode selects the deployer implementation.
type DeployMode string

const (
	// DeployModeCLI deploys through the az CLI.
	DeployModeCLI DeployMode = "cli"
	// DeployModeARM deploys through the Azure Resource Manager SDK.
	DeployModeARM DeployMode = "arm"
)

// Configuration constants with documented bounds.
const (
	DefaultTemplateBaseURI   = "https://raw.githubusercontent.com/mspnp/template-building-blocks/master/templates/"
	DefaultDeploymentTimeout = 1800 * time.Second
	MinDeploymentTimeout     = 60 * time.Second
	MaxDeploymentTimeout     = 4 * time.Hour
	DefaultOutputDir         = "."
)

// Environment variables.
const (
	EnvDefaultsDir       = "AZBB_DEFAULTS_DIR"
	EnvTemplateBaseURI   = "AZBB_TEMPLATE_BASE_URI"
	EnvCloud             = "AZBB_CLOUD"
	EnvDeployMode        = "AZBB_DEPLOY_MODE"
	EnvSubscriptionID    = "AZURE_SUBSCRIPTION_ID"
	EnvLocation          = "AZURE_LOCATION"
	EnvResourceGroup     = "AZBB_RESOURCE_GROUP"
	EnvSASToken          = "AZBB_SAS_TOKEN"
	EnvKeyVaultID        = "AZBB_KEY_VAULT_ID"
	EnvOutputDir         = "AZBB_OUTPUT_DIR"
	EnvDeploymentTimeout = "AZBB_DEPLOYMENT_TIMEOUT_SECONDS"
)

// Configuration errors.
var (
	ErrMissingSubscriptionID = errors.New("AZURE_SUBSCRIPTION_ID is required")
	ErrMissingResourceGroup  = errors.New("AZBB_RESOURCE_GROUP is required")
	ErrMissingLocation       = errors.New("AZURE_LOCATION is required")
	ErrInvalidContext        = errors.New("invalid building block context")
	ErrInvalidTemplateURI    = errors.New("AZBB_TEMPLATE_BASE_URI must be an absolute URL")
	ErrInvalidDeployMode     = errors.New("AZBB_DEPLOY_MODE must be cli or arm")
	ErrInvalidCloud          = errors.New("AZBB_CLOUD must be AzureCloud, AzureChinaCloud or AzureUSGovernment")
	ErrInvalidKeyVaultID     = errors.New("AZBB_KEY_VAULT_ID must be a Key Vault resource ID")
	ErrInvalidTimeout        = errors.New("AZBB_DEPLOYMENT_TIMEOUT_SECONDS out of valid range")
)

// validate is the singleton validator instance.
var validate = validator.New()

// wrapErrWithValue wraps an error with an invalid value for context.
func wrapErrWithValue(err error, value string) error {
	return fmt.Errorf("%w: %s", err, value)
}

// Config holds the azbb configuration.
type Config struct {
	// SubscriptionID, ResourceGroupName and Location form the building-block context.
	SubscriptionID    string
	ResourceGroupName string
	Location          string

	// DefaultsDir holds the optional per-type defaults files.
	DefaultsDir string
	// OutputDir receives the output parameter files.
	OutputDir string
	// TemplateBaseURI is prefixed to the registry template paths.
	TemplateBaseURI string `validate:"required,url"`
	// SASToken is appended to template URIs.
	SASToken string
	// KeyVaultID, when set, turns secret parameters into Key Vault references.
	KeyVaultID string

	// Cloud is the Azure cloud name.
	Cloud string
	// DeployMode selects the deployer.
	DeployMode DeployMode `validate:"oneof=cli arm"`
	// DeploymentTimeout bounds each deployment.
	DeploymentTimeout time.Duration `validate:"min=1m,max=4h"`
}

// LoadFromEnv loads configuration from environment variables. It does not
// validate; flags may still override values.
func LoadFromEnv() *Config {
	return &Config{
		SubscriptionID:    os.Getenv(EnvSubscriptionID),
		ResourceGroupName: os.Getenv(EnvResourceGroup),
		Location:          os.Getenv(EnvLocation),
		DefaultsDir:       os.Getenv(EnvDefaultsDir),
		OutputDir:         getEnvOrDefault(EnvOutputDir, DefaultOutputDir),
		TemplateBaseURI:   getEnvOrDefault(EnvTemplateBaseURI, DefaultTemplateBaseURI),
		SASToken:          os.Getenv(EnvSASToken),
		KeyVaultID:        os.Getenv(EnvKeyVaultID),
		Cloud:             getEnvOrDefault(EnvCloud, resources.AzureCloud),
		DeployMode:        DeployMode(strings.ToLower(getEnvOrDefault(EnvDeployMode, string(DeployModeCLI)))),
		DeploymentTimeout: getEnvDuration(EnvDeploymentTimeout, DefaultDeploymentTimeout),
	}
}

// Context returns the building-block context of the configuration.
func (c *Config) Context() (resources.Context, error) {
	cloud, err := resources.LookupCloud(c.Cloud)
	if err != nil {
		return resources.Context{}, wrapErrWithValue(ErrInvalidCloud, c.Cloud)
	}
	return resources.Context{
		SubscriptionID:    strings.ToLower(c.SubscriptionID),
		ResourceGroupName: c.ResourceGroupName,
		Location:          c.Location,
		Cloud:             cloud,
		SASToken:          strings.TrimPrefix(c.SASToken, "?"),
	}, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.SubscriptionID == "" {
		errs = append(errs, ErrMissingSubscriptionID)
	}
	if c.ResourceGroupName == "" {
		errs = append(errs, ErrMissingResourceGroup)
	}
	if c.Location == "" {
		errs = append(errs, ErrMissingLocation)
	}

	ctx, err := c.Context()
	if err != nil {
		errs = append(errs, err)
	} else if c.SubscriptionID != "" && c.ResourceGroupName != "" {
		if err := ctx.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidContext, err))
		}
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			switch fe.Field() {
			case "TemplateBaseURI":
				errs = append(errs, wrapErrWithValue(ErrInvalidTemplateURI, c.TemplateBaseURI))
			case "DeployMode":
				errs = append(errs, wrapErrWithValue(ErrInvalidDeployMode, string(c.DeployMode)))
			case "DeploymentTimeout":
				errs = append(errs, fmt.Errorf("%w: must be between %v and %v",
					ErrInvalidTimeout, MinDeploymentTimeout, MaxDeploymentTimeout))
			}
		}
	}

	if c.KeyVaultID != "" {
		id, err := resources.ParseResourceID(c.KeyVaultID)
		if err != nil || !strings.EqualFold(id.ResourceType.String(), "Microsoft.KeyVault/vaults") {
			errs = append(errs, wrapErrWithValue(ErrInvalidKeyVaultID, c.KeyVaultID))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TemplateURI resolves a registry template path against the base URI and
// appends the SAS token.
func (c *Config) TemplateURI(path string) string {
	uri := path
	if !strings.Contains(path, "://") {
		uri = strings.TrimSuffix(c.TemplateBaseURI, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	return WithSASToken(uri, c.SASToken)
}

// WithSASToken appends a SAS token to a URI.
func WithSASToken(uri, token string) string {
	token = strings.TrimPrefix(token, "?")
	if token == "" {
		return uri
	}
	if strings.Contains(uri, "?") {
		return uri + "&" + token
	}
	return uri + "?" + token
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvDuration parses a duration from seconds environment variable.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
