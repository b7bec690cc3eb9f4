package blocks

import (
	"fmt"

	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

func templateDefaults() map[string]interface{} {
	return map[string]interface{}{
		"parameters": map[string]interface{}{},
	}
}

func templateRules() validation.Rules {
	return placementRules().With(
		validation.Rule{Field: "templateUri", Check: validation.IsValidURL},
		validation.Rule{Field: "parameters", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
			_, ok := value.(map[string]interface{})
			return validation.Check(ok, "parameters must be an object")
		}},
	)
}

// splitTemplateParameters unwraps {value} parameters. {reference}
// parameters are returned apart so they are emitted verbatim.
func splitTemplateParameters(params map[string]interface{}) (map[string]interface{}, map[string]interface{}) {
	plain := map[string]interface{}{}
	references := map[string]interface{}{}
	for name, p := range params {
		obj, ok := p.(map[string]interface{})
		switch {
		case ok && len(obj) == 1 && values.Has(obj, "value"):
			plain[name] = values.Clone(obj["value"])
		case ok && len(obj) == 1 && values.Has(obj, "reference"):
			references[name] = values.CloneMap(obj)
		default:
			plain[name] = values.Clone(p)
		}
	}
	return plain, references
}

// ProcessTemplate runs the template building block: a user template deployed
// with the given parameters, optionally into another resource group.
func ProcessTemplate(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, fmt.Errorf("%w: a template building block takes exactly one settings object", ErrInvalidSettings)
	}

	merged := resources.SetupObject(merge.Object(items[0], nil, templateDefaults(), in.Defaults), in.Context, nil)
	if err := check(in.Settings, []map[string]interface{}{merged}, templateRules()); err != nil {
		return nil, err
	}

	target := resources.ResourceGroup{
		SubscriptionID:    values.GetString(merged, resources.FieldSubscriptionID),
		ResourceGroupName: values.GetString(merged, resources.FieldResourceGroupName),
		Location:          values.GetString(merged, resources.FieldLocation),
	}
	params, references := splitTemplateParameters(values.GetMap(merged, "parameters"))

	return &Result{
		ResourceGroups: []resources.ResourceGroup{target},
		Parameters:     params,
		References:     references,
		TemplateURI:    values.GetString(merged, "templateUri"),
		Target:         &target,
	}, nil
}
