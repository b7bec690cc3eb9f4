// Package validation walks arbitrary settings trees against declarative rule
// trees and collects every violation with a dotted, index-qualified path.
//
// A rule tree is either an ordered list of field rules (Rules) or a single
// element validator (Func). Field validators may accept the value, reject it
// with a message, or hand back a nested tree to validate the value against.
// Arrays are always fanned out element-wise, so a field holding a list of
// objects or scalars yields errors such as ".nics[0].isPublic".
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error is a single validation failure.
type Error struct {
	// Name is the path of the offending field (e.g. ".nics[0].isPublic").
	Name string `json:"name"`
	// Message describes the violated condition.
	Message string `json:"message"`
}

// Errors collects every validation failure of one settings document.
// The error text is the JSON-serialized list so it can be shown verbatim.
type Errors []Error

// Error returns the JSON-serialized error list.
func (e Errors) Error() string {
	data, err := json.Marshal([]Error(e))
	if err != nil {
		return fmt.Sprintf("%d validation error(s)", len(e))
	}
	return string(data)
}

// Names returns the paths of all errors in order.
func (e Errors) Names() []string {
	names := make([]string, len(e))
	for i, v := range e {
		names[i] = v.Name
	}
	return names
}

// Result is the outcome of a single validator invocation.
type Result struct {
	// Valid reports whether the value passed. Ignored when Validations is set.
	Valid bool
	// Message explains a failure.
	Message string
	// Validations, when set, is applied to the value instead of a verdict.
	Validations Tree
}

// Tree is a validation rule tree: either Rules or a Func.
type Tree interface {
	walk(value interface{}, parent map[string]interface{}, path string) Errors
}

// Func validates one value. parent is the object holding the value and may be
// used for cross-field checks; it is nil for root values and array elements
// of scalar lists.
type Func func(value interface{}, parent map[string]interface{}) Result

// Rule binds a validator to a field name.
type Rule struct {
	Field string
	Check Func
}

// Rules is an ordered rule list, evaluated in declaration order.
type Rules []Rule

// With returns a copy of r with extra rules appended. The receiver is not modified.
func (r Rules) With(extra ...Rule) Rules {
	out := make(Rules, 0, len(r)+len(extra))
	out = append(out, r...)
	return append(out, extra...)
}

// Without returns a copy of r without the named fields.
func (r Rules) Without(fields ...string) Rules {
	out := make(Rules, 0, len(r))
	for _, rule := range r {
		skip := false
		for _, f := range fields {
			if rule.Field == f {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, rule)
		}
	}
	return out
}

// Replace returns a copy of r with the validator of field swapped for check.
func (r Rules) Replace(field string, check Func) Rules {
	out := make(Rules, len(r))
	copy(out, r)
	for i := range out {
		if out[i].Field == field {
			out[i].Check = check
		}
	}
	return out
}

// Validate validates settings against tree and returns all errors.
// Settings may be an object, a scalar, or an array of either.
func Validate(settings interface{}, tree Tree) Errors {
	if tree == nil {
		return nil
	}
	return walkValue(settings, tree, nil, "")
}

func walkValue(value interface{}, tree Tree, parent map[string]interface{}, path string) Errors {
	if items, ok := value.([]interface{}); ok {
		var errs Errors
		for i, item := range items {
			errs = append(errs, walkValue(item, tree, parent, fmt.Sprintf("%s[%d]", path, i))...)
		}
		return errs
	}
	return tree.walk(value, parent, path)
}

func (r Rules) walk(value interface{}, _ map[string]interface{}, path string) Errors {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return Errors{{Name: path, Message: "Value must be an object"}}
	}

	var errs Errors
	for _, rule := range r {
		fieldPath := path + "." + rule.Field
		fieldValue := obj[rule.Field]
		res := rule.Check(fieldValue, obj)
		if res.Validations != nil {
			if fieldValue != nil {
				errs = append(errs, walkValue(fieldValue, res.Validations, obj, fieldPath)...)
			}
			continue
		}
		if !res.Valid {
			errs = append(errs, Error{Name: fieldPath, Message: res.Message})
		}
	}
	return errs
}

func (f Func) walk(value interface{}, parent map[string]interface{}, path string) Errors {
	res := f(value, parent)
	if res.Validations != nil {
		if value == nil {
			return nil
		}
		return walkValue(value, res.Validations, parent, path)
	}
	if !res.Valid {
		return Errors{{Name: path, Message: res.Message}}
	}
	return nil
}

// OK is a passing result.
func OK() Result {
	return Result{Valid: true}
}

// Fail is a failing result with a message.
func Fail(format string, args ...interface{}) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

// Check passes when cond holds and fails with message otherwise.
func Check(cond bool, message string) Result {
	if cond {
		return OK()
	}
	return Result{Message: message}
}

// Recurse delegates validation of the value to tree.
func Recurse(tree Tree) Result {
	return Result{Validations: tree}
}

// Nested returns a validator that always recurses into tree.
func Nested(tree Tree) Func {
	return func(_ interface{}, _ map[string]interface{}) Result {
		return Recurse(tree)
	}
}

// Optional wraps check so that nil values pass.
func Optional(check Func) Func {
	return func(value interface{}, parent map[string]interface{}) Result {
		if value == nil {
			return OK()
		}
		return check(value, parent)
	}
}

// Each returns a validator for an array field that applies check to every element.
// Non-array values fail.
func Each(check Func) Func {
	return func(value interface{}, _ map[string]interface{}) Result {
		if _, ok := value.([]interface{}); !ok {
			return Fail("Value must be an array")
		}
		return Recurse(check)
	}
}

// Join returns a message listing allowed values.
func Join(values []string) string {
	return "[" + strings.Join(values, ", ") + "]"
}
