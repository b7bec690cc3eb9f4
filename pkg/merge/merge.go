// Package merge deep-merges settings over layered defaults.
//
// Layers are applied in order: the first layer is the base (built-in
// defaults), each later layer overrides it (a user defaults file), and the
// settings override everything. Objects merge key by key, scalars and
// non-empty arrays from the overriding side win. A Policy changes that behavior for
// specific keys at any depth.
//
// Merge never mutates its inputs and is idempotent: merging a merged result
// over the same layers again yields the same result.
package merge

import (
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

type strategy int

const (
	deepMerge strategy = iota
	replace
	arrayReplaceIfNonEmpty
	custom
)

// CustomFunc computes the merged value of a policy key. base is the value from
// lower-precedence layers (nil when HasBase is false), override the value from
// the higher-precedence side.
type CustomFunc func(base, override interface{}, s Scope) interface{}

// Scope is handed to custom rules.
type Scope struct {
	// Key is the policy key being merged.
	Key string
	// HasBase reports whether the base object held the key.
	HasBase bool
	// Base is the lower-precedence object holding the key.
	Base map[string]interface{}
	// Override is the higher-precedence object holding the key.
	Override map[string]interface{}
	// Policy is the policy in effect.
	Policy Policy
}

// Merge applies the default merge of this scope, for custom rules that only
// adjust the result.
func (s Scope) Merge(base, override interface{}) interface{} {
	return mergeValue(base, override, s.Policy)
}

// Rule is a merge strategy for one key.
type Rule struct {
	kind strategy
	fn   CustomFunc
}

// Strategies.
var (
	// DeepMerge merges objects key by key and arrays index by index.
	DeepMerge = Rule{kind: deepMerge}
	// Replace takes the overriding value as-is, objects included.
	Replace = Rule{kind: replace}
	// ArrayReplaceIfNonEmpty takes the overriding array unless it is empty.
	ArrayReplaceIfNonEmpty = Rule{kind: arrayReplaceIfNonEmpty}
)

// Custom wraps fn as a rule.
func Custom(fn CustomFunc) Rule {
	return Rule{kind: custom, fn: fn}
}

// MergeEach merges every overriding array element over the first base element,
// using policy for the element merge. It is the usual rule for lists of
// sub-resources whose defaults are a single template element.
func MergeEach(policy Policy) Rule {
	return Custom(func(base, override interface{}, _ Scope) interface{} {
		items, ok := override.([]interface{})
		if !ok {
			return values.Clone(override)
		}
		template := firstMap(base)
		out := make([]interface{}, len(items))
		for i, item := range items {
			if template == nil {
				out[i] = values.Clone(item)
				continue
			}
			out[i] = mergeValue(template, item, policy)
		}
		return out
	})
}

// Policy maps keys to rules. Keys match at any depth.
type Policy map[string]Rule

// With returns a copy of p with extra rules.
func (p Policy) With(extra Policy) Policy {
	out := make(Policy, len(p)+len(extra))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Merge merges settings over layers. A settings array merges each element
// independently over the folded layers.
func Merge(settings interface{}, policy Policy, layers ...map[string]interface{}) interface{} {
	base := Layers(policy, layers...)

	if items, ok := settings.([]interface{}); ok {
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = mergeValue(base, item, policy)
		}
		return out
	}
	if settings == nil {
		return base
	}
	return mergeValue(base, settings, policy)
}

// Object merges an object over layers and always returns an object.
func Object(settings map[string]interface{}, policy Policy, layers ...map[string]interface{}) map[string]interface{} {
	out, _ := Merge(settings, policy, layers...).(map[string]interface{})
	if out == nil {
		out = map[string]interface{}{}
	}
	return out
}

// Layers folds layers into one object, later layers winning.
func Layers(policy Policy, layers ...map[string]interface{}) map[string]interface{} {
	acc := map[string]interface{}{}
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		acc = mergeMap(acc, layer, policy)
	}
	return acc
}

func mergeValue(base, override interface{}, policy Policy) interface{} {
	baseMap, baseIsMap := base.(map[string]interface{})
	overMap, overIsMap := override.(map[string]interface{})
	if baseIsMap && overIsMap {
		return mergeMap(baseMap, overMap, policy)
	}
	// An empty array keeps a non-empty default.
	if items, ok := override.([]interface{}); ok && len(items) == 0 {
		if baseItems, ok := base.([]interface{}); ok && len(baseItems) > 0 {
			return values.Clone(base)
		}
	}
	return values.Clone(override)
}

func mergeMap(base, override map[string]interface{}, policy Policy) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = values.Clone(v)
	}
	for k, v := range override {
		baseValue, hasBase := base[k]
		rule, ok := policy[k]
		if !ok {
			out[k] = mergeValue(baseValue, v, policy)
			continue
		}
		out[k] = apply(rule, baseValue, v, Scope{
			Key:      k,
			HasBase:  hasBase,
			Base:     base,
			Override: override,
			Policy:   policy,
		})
	}
	return out
}

func apply(rule Rule, base, override interface{}, s Scope) interface{} {
	switch rule.kind {
	case replace:
		return values.Clone(override)
	case arrayReplaceIfNonEmpty:
		if items, ok := override.([]interface{}); ok && len(items) == 0 && s.HasBase {
			return values.Clone(base)
		}
		return mergeValue(base, override, s.Policy)
	case custom:
		return rule.fn(base, override, s)
	default:
		baseItems, baseIsSlice := base.([]interface{})
		overItems, overIsSlice := override.([]interface{})
		if baseIsSlice && overIsSlice {
			return mergeSlices(baseItems, overItems, s.Policy)
		}
		return mergeValue(base, override, s.Policy)
	}
}

func mergeSlices(base, override []interface{}, policy Policy) []interface{} {
	n := len(base)
	if len(override) > n {
		n = len(override)
	}
	out := make([]interface{}, n)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(override):
			out[i] = values.Clone(base[i])
		case i >= len(base):
			out[i] = values.Clone(override[i])
		default:
			out[i] = mergeValue(base[i], override[i], policy)
		}
	}
	return out
}

func firstMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	items, ok := v.([]interface{})
	if !ok || len(items) == 0 {
		return nil
	}
	m, _ := items[0].(map[string]interface{})
	return m
}
