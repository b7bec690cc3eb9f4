// Package auth builds the Azure credential used by the ARM deployer.
//
// Three credential kinds are supported:
//   - default: DefaultAzureCredential (environment, workload identity, managed identity, az CLI)
//   - cli: the identity signed in to the az CLI
//   - managed-identity: a system or user-assigned managed identity
//
// SECURITY: Credential material is never logged; client IDs are masked.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.uber.org/zap"
)

// Kind selects the credential implementation.
type Kind string

const (
	KindDefault         Kind = "default"
	KindCLI             Kind = "cli"
	KindManagedIdentity Kind = "managed-identity"
)

// Errors.
var (
	ErrUnknownCredentialKind = errors.New("unknown credential kind")
	ErrCredential            = errors.New("failed to create credential")
)

// Options configures NewCredential.
type Options struct {
	// Kind defaults to KindDefault.
	Kind Kind
	// Cloud selects the Entra ID authority.
	Cloud cloud.Configuration
	// ClientID selects a user-assigned managed identity.
	ClientID string
	// TenantID restricts default and CLI credentials to a tenant.
	TenantID string
}

// ParseKind parses a credential kind, ignoring case. Empty means KindDefault.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindDefault, nil
	case KindDefault, KindCLI, KindManagedIdentity:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCredentialKind, s)
	}
}

// NewCredential returns the credential selected by opts.
func NewCredential(opts Options, logger *zap.Logger) (azcore.TokenCredential, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientOptions := azcore.ClientOptions{Cloud: opts.Cloud}

	var (
		cred azcore.TokenCredential
		err  error
	)
	switch opts.Kind {
	case "", KindDefault:
		cred, err = azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			ClientOptions: clientOptions,
			TenantID:      opts.TenantID,
		})
	case KindCLI:
		cred, err = azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{
			TenantID: opts.TenantID,
		})
	case KindManagedIdentity:
		miOpts := &azidentity.ManagedIdentityCredentialOptions{ClientOptions: clientOptions}
		if opts.ClientID != "" {
			miOpts.ID = azidentity.ClientID(opts.ClientID)
			logger.Info("Using user-assigned managed identity",
				zap.String("client_id", maskClientID(opts.ClientID)),
			)
		} else {
			logger.Info("Using system-assigned managed identity")
		}
		cred, err = azidentity.NewManagedIdentityCredential(miOpts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCredentialKind, opts.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCredential, opts.Kind, err)
	}

	logger.Debug("Credential created", zap.String("credential_kind", string(kindOrDefault(opts.Kind))))
	return cred, nil
}

// Scope returns the token scope of the resource manager of c.
func Scope(c cloud.Configuration) string {
	svc, ok := c.Services[cloud.ResourceManager]
	if !ok || svc.Audience == "" {
		svc = cloud.AzurePublic.Services[cloud.ResourceManager]
	}
	return strings.TrimSuffix(svc.Audience, "/") + "/.default"
}

// TokenOptions returns the token request options for the resource manager of c.
func TokenOptions(c cloud.Configuration) policy.TokenRequestOptions {
	return policy.TokenRequestOptions{Scopes: []string{Scope(c)}}
}

func kindOrDefault(k Kind) Kind {
	if k == "" {
		return KindDefault
	}
	return k
}

// maskClientID masks a client ID for logging.
func maskClientID(id string) string {
	if len(id) <= 8 {
		return "****"
	}
	return id[:8] + "..."
}
