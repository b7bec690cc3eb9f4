package resources

import (
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

// ResourceGroup identifies a resource group that must exist before deployment.
type ResourceGroup struct {
	SubscriptionID    string `json:"subscriptionId"`
	ResourceGroupName string `json:"resourceGroupName"`
	Location          string `json:"location"`
}

// ExtractResourceGroups returns the distinct resource groups referenced by
// stamps, in order of first occurrence. Each argument may be a stamp or a
// list of stamps; stamps without a subscription or resource group are skipped.
func ExtractResourceGroups(stamps ...interface{}) []ResourceGroup {
	seen := make(map[ResourceGroup]bool)
	groups := []ResourceGroup{}

	add := func(v interface{}) {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return
		}
		rg := ResourceGroup{
			SubscriptionID:    values.GetString(obj, FieldSubscriptionID),
			ResourceGroupName: values.GetString(obj, FieldResourceGroupName),
			Location:          values.GetString(obj, FieldLocation),
		}
		if rg.SubscriptionID == "" || rg.ResourceGroupName == "" || seen[rg] {
			return
		}
		seen[rg] = true
		groups = append(groups, rg)
	}

	for _, s := range stamps {
		switch t := s.(type) {
		case []interface{}:
			for _, item := range t {
				add(item)
			}
		case []map[string]interface{}:
			for _, item := range t {
				add(item)
			}
		default:
			add(t)
		}
	}
	return groups
}

// MergeResourceGroups concatenates group lists, dropping duplicates.
func MergeResourceGroups(lists ...[]ResourceGroup) []ResourceGroup {
	seen := make(map[ResourceGroup]bool)
	out := []ResourceGroup{}
	for _, list := range lists {
		for _, rg := range list {
			if seen[rg] {
				continue
			}
			seen[rg] = true
			out = append(out, rg)
		}
	}
	return out
}
