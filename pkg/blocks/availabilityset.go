package blocks

import (
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const typeAvailabilitySet = "Microsoft.Compute/availabilitySets"

func availabilitySetDefaults() map[string]interface{} {
	return map[string]interface{}{
		"platformFaultDomainCount":  3,
		"platformUpdateDomainCount": 5,
		"tags":                      map[string]interface{}{},
	}
}

func availabilitySetRules() validation.Rules {
	return validation.Rules{
		{Field: "name", Check: validation.Optional(validation.NotNullOrWhitespace)},
		{Field: "platformFaultDomainCount", Check: validation.IsInRange(1, 3)},
		{Field: "platformUpdateDomainCount", Check: validation.IsInRange(1, 20)},
		{Field: "tags", Check: validation.Tags},
	}
}

// transformAvailabilitySet builds the availability set stamp. Managed disks
// require the Aligned sku.
func transformAvailabilitySet(as map[string]interface{}, managed bool) map[string]interface{} {
	out := stamp(as, values.GetString(as, "name"))
	sku := "Classic"
	if managed {
		sku = "Aligned"
	}
	out["sku"] = map[string]interface{}{"name": sku}
	out["tags"] = tags(as)
	out["properties"] = map[string]interface{}{
		"platformFaultDomainCount":  values.GetInt(as, "platformFaultDomainCount", 3),
		"platformUpdateDomainCount": values.GetInt(as, "platformUpdateDomainCount", 5),
	}
	return out
}
