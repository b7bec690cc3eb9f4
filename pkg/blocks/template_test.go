package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

const testTemplateURI = "https://example.com/templates/azuredeploy.json"

func TestProcessTemplate(t *testing.T) {
	reference := map[string]interface{}{
		"reference": map[string]interface{}{
			"keyVault":   map[string]interface{}{"id": testIDPrefix + "Microsoft.KeyVault/vaults/kv"},
			"secretName": "adminPassword",
		},
	}
	settings := map[string]interface{}{
		"templateUri":                    testTemplateURI,
		resources.FieldResourceGroupName: testOtherResourceGroup,
		"parameters": map[string]interface{}{
			"count":         map[string]interface{}{"value": 3},
			"sku":           "Standard",
			"settings":      map[string]interface{}{"a": 1, "b": 2},
			"adminPassword": reference,
		},
	}
	res, err := ProcessTemplate(testInput(settings))
	require.NoError(t, err)

	assert.Equal(t, testTemplateURI, res.TemplateURI)
	require.NotNil(t, res.Target)
	assert.Equal(t, resources.ResourceGroup{
		SubscriptionID:    testSubscriptionID,
		ResourceGroupName: testOtherResourceGroup,
		Location:          testLocation,
	}, *res.Target)
	assert.Equal(t, []resources.ResourceGroup{*res.Target}, res.ResourceGroups)

	assert.Equal(t, map[string]interface{}{
		"count":    3,
		"sku":      "Standard",
		"settings": map[string]interface{}{"a": 1, "b": 2},
	}, res.Parameters)
	assert.Equal(t, map[string]interface{}{"adminPassword": reference}, res.References)
}

func TestProcessTemplateRules(t *testing.T) {
	tests := []struct {
		name     string
		settings interface{}
		wantErr  error
		wantPath string
	}{
		{"multiple objects", []interface{}{
			map[string]interface{}{"templateUri": testTemplateURI},
			map[string]interface{}{"templateUri": testTemplateURI},
		}, ErrInvalidSettings, ""},
		{"bad uri", map[string]interface{}{"templateUri": "not a uri"}, nil, ".templateUri"},
		{"parameters not an object", map[string]interface{}{
			"templateUri": testTemplateURI,
			"parameters":  []interface{}{"a"},
		}, nil, ".parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ProcessTemplate(testInput(tt.settings))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.Contains(t, errorNames(t, err), tt.wantPath)
		})
	}
}
