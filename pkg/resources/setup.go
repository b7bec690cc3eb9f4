package resources

import (
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

// BoundaryFunc reports whether an object under parentKey is an independently
// deployable resource. Array elements use the key of their array.
type BoundaryFunc func(parentKey string) bool

// Boundaries returns a BoundaryFunc matching the given keys.
func Boundaries(keys ...string) BoundaryFunc {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return func(parentKey string) bool {
		return set[parentKey]
	}
}

// placement is the context in effect at a tree node.
type placement struct {
	subscriptionID    string
	resourceGroupName string
	location          string
}

// push layers the overrides of obj onto p.
func (p placement) push(obj map[string]interface{}) placement {
	if s, ok := obj[FieldSubscriptionID].(string); ok && s != "" {
		p.subscriptionID = s
	}
	if s, ok := obj[FieldResourceGroupName].(string); ok && s != "" {
		p.resourceGroupName = s
	}
	if s, ok := obj[FieldLocation].(string); ok && s != "" {
		p.location = s
	}
	return p
}

// SetupResources returns a copy of settings where the root object and every
// object under a boundary key carry subscriptionId, resourceGroupName and
// location. Values present on a node win and are inherited by its boundary
// descendants; other objects are walked but left untouched. A root array is
// treated as a list of roots. settings is not modified.
func SetupResources(settings interface{}, ctx Context, isBoundary BoundaryFunc) interface{} {
	root := placement{
		subscriptionID:    ctx.SubscriptionID,
		resourceGroupName: ctx.ResourceGroupName,
		location:          ctx.Location,
	}
	if isBoundary == nil {
		isBoundary = func(string) bool { return false }
	}
	if items, ok := settings.([]interface{}); ok {
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = rebuild(item, root, true, isBoundary)
		}
		return out
	}
	return rebuild(settings, root, true, isBoundary)
}

// SetupObject is SetupResources for a single object.
func SetupObject(settings map[string]interface{}, ctx Context, isBoundary BoundaryFunc) map[string]interface{} {
	out, _ := SetupResources(settings, ctx, isBoundary).(map[string]interface{})
	return out
}

func rebuild(v interface{}, p placement, boundary bool, isBoundary BoundaryFunc) interface{} {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return values.Clone(v)
	}

	if boundary {
		p = p.push(obj)
	}

	out := make(map[string]interface{}, len(obj)+3)
	for k, child := range obj {
		childBoundary := isBoundary(k)
		switch c := child.(type) {
		case map[string]interface{}:
			out[k] = rebuild(c, p, childBoundary, isBoundary)
		case []interface{}:
			items := make([]interface{}, len(c))
			for i, item := range c {
				items[i] = rebuild(item, p, childBoundary, isBoundary)
			}
			out[k] = items
		default:
			out[k] = values.Clone(child)
		}
	}

	if boundary {
		inject(out, FieldSubscriptionID, p.subscriptionID)
		inject(out, FieldResourceGroupName, p.resourceGroupName)
		inject(out, FieldLocation, p.location)
	}
	return out
}

func inject(obj map[string]interface{}, key, value string) {
	if value == "" {
		return
	}
	if s, ok := obj[key].(string); ok && s != "" {
		return
	}
	obj[key] = value
}
