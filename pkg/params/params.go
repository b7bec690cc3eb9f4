// Package params builds deployment parameter files and reads the building
// blocks out of an input parameter file.
package params

import (
	"errors"
	"fmt"
	"sort"

	"github.com/flavioaiello/azure-building-blocks/pkg/blocks"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

// Parameter file constants.
const (
	Schema         = "https://schema.management.azure.com/schemas/2015-01-01/deploymentParameters.json#"
	ContentVersion = "1.0.0.0"

	// BuildingBlocksParameter is the input parameter listing the building blocks.
	BuildingBlocksParameter = "buildingBlocks"
)

// Errors.
var (
	ErrMissingBuildingBlocks = errors.New("parameters.buildingBlocks.value must be an array")
	ErrInvalidBuildingBlock  = errors.New("invalid building block")
)

// File is a deployment parameter file.
type File struct {
	Schema         string                 `json:"$schema"`
	ContentVersion string                 `json:"contentVersion"`
	Parameters     map[string]interface{} `json:"parameters"`
}

// Value is a plain parameter.
type Value struct {
	Value interface{} `json:"value"`
}

// KeyVaultRef identifies a Key Vault by resource ID.
type KeyVaultRef struct {
	ID string `json:"id"`
}

// SecretReference points at a Key Vault secret.
type SecretReference struct {
	KeyVault   KeyVaultRef `json:"keyVault"`
	SecretName string      `json:"secretName"`
}

// Reference is a parameter resolved from Key Vault at deployment time.
type Reference struct {
	Reference SecretReference `json:"reference"`
}

// Options control how secrets are written.
type Options struct {
	// KeyVaultID, when set, writes every secret as a Key Vault reference
	// whose secret name is the parameter name.
	KeyVaultID string
}

// New returns an empty parameter file.
func New() *File {
	return &File{
		Schema:         Schema,
		ContentVersion: ContentVersion,
		Parameters:     map[string]interface{}{},
	}
}

// Build wraps the output of a building block into a parameter file.
func Build(res *blocks.Result, opts Options) (*File, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: no result", ErrInvalidBuildingBlock)
	}
	f := New()
	for name, v := range res.Parameters {
		f.Parameters[name] = Value{Value: v}
	}
	for name, secret := range res.Secrets {
		if opts.KeyVaultID != "" {
			if !resources.IsResourceID(opts.KeyVaultID) {
				return nil, fmt.Errorf("%w: key vault id %q", ErrInvalidBuildingBlock, opts.KeyVaultID)
			}
			f.Parameters[name] = Reference{Reference: SecretReference{
				KeyVault:   KeyVaultRef{ID: opts.KeyVaultID},
				SecretName: name,
			}}
			continue
		}
		f.Parameters[name] = Value{Value: secret}
	}
	for name, ref := range res.References {
		f.Parameters[name] = values.Clone(ref)
	}
	return f, nil
}

// Names returns the parameter names in order.
func (f *File) Names() []string {
	out := make([]string, 0, len(f.Parameters))
	for k := range f.Parameters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildingBlock is one entry of the input parameter file.
type BuildingBlock struct {
	Type     string
	Settings interface{}
}

// BuildingBlocks extracts parameters.buildingBlocks.value from a decoded
// input parameter file.
func BuildingBlocks(doc map[string]interface{}) ([]BuildingBlock, error) {
	doc, _ = values.Normalize(doc).(map[string]interface{})
	items, ok := values.Get(doc, "parameters."+BuildingBlocksParameter+".value").([]interface{})
	if !ok {
		return nil, ErrMissingBuildingBlocks
	}

	out := make([]BuildingBlock, 0, len(items))
	for i, item := range items {
		bb, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: buildingBlocks[%d] must be an object", ErrInvalidBuildingBlock, i)
		}
		typ := values.GetString(bb, "type")
		if typ == "" {
			return nil, fmt.Errorf("%w: buildingBlocks[%d].type is required", ErrInvalidBuildingBlock, i)
		}
		settings, ok := bb["settings"]
		if !ok || settings == nil {
			return nil, fmt.Errorf("%w: buildingBlocks[%d].settings is required", ErrInvalidBuildingBlock, i)
		}
		out = append(out, BuildingBlock{Type: typ, Settings: settings})
	}
	return out, nil
}
