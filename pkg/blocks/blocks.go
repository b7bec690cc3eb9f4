// Package blocks implements the building-block settings modules.
//
// Every building block follows the same pipeline: check the building-block
// context, merge the user settings over the built-in and user defaults,
// validate the merged settings, transform them into deployment parameter
// stamps and collect the resource groups those stamps live in. All
// functions in this package are pure; the only side effects are the
// optional pre and post deployment hooks, which run through an injected
// deploy.Runner.
package blocks

import (
	"context"
	"errors"
	"fmt"

	"github.com/flavioaiello/azure-building-blocks/pkg/deploy"
	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

// SecretPlaceholder replaces secret values inside emitted stamps.
const SecretPlaceholder = "$SECRET$"

// Errors.
var (
	ErrInvalidContext   = errors.New("invalid building block context")
	ErrInvalidSettings  = errors.New("settings must be an object or an array of objects")
	ErrUnknownBlockType = errors.New("unknown building block type")
	ErrTransform        = errors.New("transform failed")
)

// Hook runs out-of-band provisioning around a deployment.
type Hook func(ctx context.Context, runner deploy.Runner) error

// Input is what every building block is processed from.
type Input struct {
	// Settings is the raw user settings: an object or an array of objects.
	Settings interface{}
	// Context is the building-block context.
	Context resources.Context
	// Defaults is the optional user defaults file content.
	Defaults map[string]interface{}
}

// Result is the outcome of processing one building block.
type Result struct {
	// ResourceGroups must exist before deployment.
	ResourceGroups []resources.ResourceGroup
	// Parameters are the template parameters, unwrapped.
	Parameters map[string]interface{}
	// Secrets are secure template parameters, by parameter name.
	Secrets map[string]string
	// References are parameters given as Key Vault references, emitted verbatim.
	References map[string]interface{}
	// TemplateURI overrides the registry template when set.
	TemplateURI string
	// Target overrides the deployment resource group when set.
	Target *resources.ResourceGroup

	PreDeploymentParameter  interface{}
	PreDeployment           Hook
	PostDeploymentParameter interface{}
	PostDeployment          Hook
}

// validateContext is the building-block context pre-check.
func validateContext(ctx resources.Context) error {
	if err := ctx.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidContext, err)
	}
	return nil
}

// objects returns settings as a list of objects.
func objects(settings interface{}) ([]map[string]interface{}, error) {
	switch t := values.Normalize(settings).(type) {
	case map[string]interface{}:
		return []map[string]interface{}{t}, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, ErrInvalidSettings
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, ErrInvalidSettings
	}
}

// check validates merged settings in the shape the user gave them: a lone
// settings object is validated as an object, so error paths carry no index.
func check(settings interface{}, merged []map[string]interface{}, rules validation.Tree) error {
	var target interface{} = values.FromMaps(merged)
	if _, ok := values.Normalize(settings).(map[string]interface{}); ok && len(merged) == 1 {
		target = merged[0]
	}
	if errs := validation.Validate(target, rules); len(errs) > 0 {
		return errs
	}
	return nil
}

// refs builds resource IDs and keeps the first error.
type refs struct {
	err error
}

func (r *refs) id(subscriptionID, resourceGroupName, resourceType, name string, subresourceName ...string) string {
	id, err := resources.ResourceID(subscriptionID, resourceGroupName, resourceType, name, subresourceName...)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%w: %s %q: %w", ErrTransform, resourceType, name, err)
	}
	return id
}

// of builds the ID of a settings object placed by SetupResources.
func (r *refs) of(obj map[string]interface{}, resourceType, name string, subresourceName ...string) string {
	return r.id(values.GetString(obj, resources.FieldSubscriptionID),
		values.GetString(obj, resources.FieldResourceGroupName), resourceType, name, subresourceName...)
}

// ref wraps an ID as a sub-resource reference.
func ref(id string) map[string]interface{} {
	return map[string]interface{}{"id": id}
}

// stamp starts a parameter stamp placed like obj.
func stamp(obj map[string]interface{}, name string) map[string]interface{} {
	return map[string]interface{}{
		"name":                         name,
		resources.FieldSubscriptionID:    values.GetString(obj, resources.FieldSubscriptionID),
		resources.FieldResourceGroupName: values.GetString(obj, resources.FieldResourceGroupName),
		resources.FieldLocation:          values.GetString(obj, resources.FieldLocation),
	}
}

// copyFields copies present fields of src into dst.
func copyFields(dst, src map[string]interface{}, fields ...string) {
	for _, f := range fields {
		if v, ok := src[f]; ok && v != nil {
			dst[f] = values.Clone(v)
		}
	}
}

// tags returns the tags of obj or an empty object.
func tags(obj map[string]interface{}) map[string]interface{} {
	if t := values.GetMap(obj, "tags"); t != nil {
		return values.CloneMap(t)
	}
	return map[string]interface{}{}
}

// placementRules are shared by every resource-bearing settings object.
func placementRules() validation.Rules {
	return validation.Rules{
		{Field: resources.FieldSubscriptionID, Check: validation.IsGUID},
		{Field: resources.FieldResourceGroupName, Check: validation.NotNullOrWhitespace},
		{Field: resources.FieldLocation, Check: validation.NotNullOrWhitespace},
	}
}

// samePlacement fails unless the resource under check lives in the same
// subscription and location as owner.
func samePlacement(owner map[string]interface{}, what string) validation.Rules {
	match := func(field string) validation.Func {
		return func(value interface{}, _ map[string]interface{}) validation.Result {
			return validation.Check(value == owner[field],
				fmt.Sprintf("%s %s must match the virtual machine %s", what, field, field))
		}
	}
	return validation.Rules{
		{Field: resources.FieldLocation, Check: match(resources.FieldLocation)},
		{Field: resources.FieldSubscriptionID, Check: match(resources.FieldSubscriptionID)},
	}
}

// names returns the "name" fields of a list of objects.
func names(v interface{}) []string {
	var out []string
	for _, m := range values.Maps(v) {
		if n, ok := m["name"].(string); ok {
			out = append(out, n)
		}
	}
	return out
}

// exists requires the value to name an entry of the list root[key].
func exists(root map[string]interface{}, key string) validation.Func {
	return func(value interface{}, _ map[string]interface{}) validation.Result {
		s, ok := value.(string)
		if !ok || validation.IsNullOrWhitespace(s) {
			return validation.Fail(validation.MsgNullOrWhitespace)
		}
		return validation.Check(validation.Contains(names(root[key]), s),
			fmt.Sprintf("%s does not exist in %s", s, key))
	}
}

// optionalExists is exists for optional references.
func optionalExists(root map[string]interface{}, key string) validation.Func {
	return validation.Optional(exists(root, key))
}

// eachExists requires every element of a list to name an entry of root[key].
func eachExists(root map[string]interface{}, key string) validation.Func {
	return validation.Optional(validation.Each(exists(root, key)))
}

// uniqueNames rejects duplicate names within a list of objects.
func uniqueNames(value interface{}, _ map[string]interface{}) validation.Result {
	seen := map[string]bool{}
	for _, n := range names(value) {
		if seen[n] {
			return validation.Fail("Duplicate name %s", n)
		}
		seen[n] = true
	}
	return validation.OK()
}

// root wraps a rule builder that needs the whole object being validated.
func root(build func(obj map[string]interface{}) validation.Rules) validation.Func {
	return func(value interface{}, _ map[string]interface{}) validation.Result {
		obj, ok := value.(map[string]interface{})
		if !ok {
			return validation.Fail("Value must be an object")
		}
		return validation.Recurse(build(obj))
	}
}

// mergeEachWithout merges list elements over template after removing the
// given template fields. The default list itself applies only when the
// user provides no list.
func mergeEachWithout(template map[string]interface{}, policy merge.Policy, drop ...string) merge.Rule {
	t := values.CloneMap(template)
	for _, k := range drop {
		delete(t, k)
	}
	return merge.Custom(func(_, override interface{}, _ merge.Scope) interface{} {
		items, ok := override.([]interface{})
		if !ok {
			return values.Clone(override)
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = merge.Merge(item, policy, t)
		}
		return out
	})
}

// each merges list elements over template.
func each(template map[string]interface{}, policy merge.Policy) merge.Rule {
	return mergeEachWithout(template, policy)
}

// withoutKeys returns a copy of m without keys.
func withoutKeys(m map[string]interface{}, keys ...string) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := values.CloneMap(m)
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// list returns v as a list, never nil.
func list(v interface{}) []interface{} {
	if items, ok := v.([]interface{}); ok {
		return items
	}
	return []interface{}{}
}

// eachOf validates every element of an optional list against rules.
func eachOf(rules validation.Rules) validation.Func {
	return validation.Optional(validation.Each(validation.Nested(rules)))
}

// nonEmptyEachOf validates every element of a required, non-empty list against rules.
func nonEmptyEachOf(rules validation.Rules) validation.Func {
	return validation.NonEmptyEach(validation.Nested(rules))
}

// required validates a mandatory object field against rules.
func required(rules validation.Tree, message string) validation.Func {
	return func(value interface{}, _ map[string]interface{}) validation.Result {
		if _, ok := value.(map[string]interface{}); !ok {
			return validation.Check(false, message)
		}
		return validation.Recurse(rules)
	}
}

// isNumber fails unless value is numeric.
func isNumber(value interface{}, _ map[string]interface{}) validation.Result {
	_, ok := values.Number(value)
	return validation.Check(ok, "Value must be a number")
}
