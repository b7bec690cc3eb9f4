package blocks

import (
	"fmt"

	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const typeScaleSet = "Microsoft.Compute/virtualMachineScaleSets"

var (
	upgradePolicies      = []string{"Automatic", "Manual", "Rolling"}
	metricStatistics     = []string{"Average", "Min", "Max"}
	timeAggregations     = []string{"Average", "Minimum", "Maximum", "Total", "Count", "Last"}
	comparisonOperators  = []string{"Equals", "NotEquals", "GreaterThan", "GreaterThanOrEqual", "LessThan", "LessThanOrEqual"}
	scaleDirections      = []string{"Increase", "Decrease"}
	scaleActionTypes     = []string{"ChangeCount", "PercentChangeCount", "ExactCount"}
	maxScaleSetCapacity  = 1000
	scaleSetComputerName = "computerNamePrefix"
)

func scaleSetDefaults() map[string]interface{} {
	return map[string]interface{}{
		"upgradePolicy":        "Automatic",
		"overprovision":        true,
		"singlePlacementGroup": true,
		"tags":                 map[string]interface{}{},
	}
}

func autoScaleRuleRules() validation.Rules {
	return validation.Rules{
		{Field: "metricTrigger", Check: required(validation.Rules{
			{Field: "metricName", Check: validation.NotNullOrWhitespace},
			{Field: "timeGrain", Check: validation.NotNullOrWhitespace},
			{Field: "statistic", Check: validation.IsOneOf(metricStatistics...)},
			{Field: "timeWindow", Check: validation.NotNullOrWhitespace},
			{Field: "timeAggregation", Check: validation.IsOneOf(timeAggregations...)},
			{Field: "operator", Check: validation.IsOneOf(comparisonOperators...)},
			{Field: "threshold", Check: isNumber},
		}, "metricTrigger must be specified")},
		{Field: "scaleAction", Check: required(validation.Rules{
			{Field: "direction", Check: validation.IsOneOf(scaleDirections...)},
			{Field: "type", Check: validation.IsOneOf(scaleActionTypes...)},
			{Field: "value", Check: validation.IsInRange(1, maxScaleSetCapacity)},
			{Field: "cooldown", Check: validation.NotNullOrWhitespace},
		}, "scaleAction must be specified")},
	}
}

func autoScaleCapacityRules() validation.Rules {
	bounded := func(value interface{}, parent map[string]interface{}) validation.Result {
		if r := validation.IsInRange(0, maxScaleSetCapacity)(value, parent); !r.Valid {
			return r
		}
		v, _ := values.Int(value)
		return validation.Check(v >= values.GetInt(parent, "minimum", 0) && v <= values.GetInt(parent, "maximum", maxScaleSetCapacity),
			"Value must be between minimum and maximum")
	}
	return validation.Rules{
		{Field: "minimum", Check: validation.IsInRange(0, maxScaleSetCapacity)},
		{Field: "maximum", Check: validation.IsInRange(0, maxScaleSetCapacity)},
		{Field: "default", Check: bounded},
	}
}

func autoScaleRules() validation.Rules {
	return validation.Rules{
		{Field: "enabled", Check: validation.Optional(validation.IsBoolean)},
		{Field: "profiles", Check: nonEmptyEachOf(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
			{Field: "capacity", Check: required(autoScaleCapacityRules(), "capacity must be specified")},
			{Field: "rules", Check: eachOf(autoScaleRuleRules())},
		})},
	}
}

func scaleSetRules() validation.Rules {
	return validation.Rules{
		{Field: "name", Check: validation.NotNullOrWhitespace},
		{Field: "upgradePolicy", Check: validation.IsOneOf(upgradePolicies...)},
		{Field: "overprovision", Check: validation.IsBoolean},
		{Field: "singlePlacementGroup", Check: validation.IsBoolean},
		{Field: "autoScaleSettings", Check: validation.Optional(validation.Nested(autoScaleRules()))},
		{Field: "tags", Check: validation.Tags},
	}
}

// transformScaleSet builds the scale set stamp and its autoscale settings,
// if any, from the virtual machine profile of b.
func transformScaleSet(b *vmBuild, ss map[string]interface{}, t nicTargets) (map[string]interface{}, map[string]interface{}) {
	name := values.GetString(ss, "name")
	t.scaleSet = true

	var nicConfigs []interface{}
	for j, nic := range values.Maps(b.vm["nics"]) {
		ipConfig := t.ipConfiguration(b.r, nic, 0)
		if values.GetBool(nic, "isPublic") {
			pip := map[string]interface{}{"idleTimeoutInMinutes": 4}
			if prefix := values.GetString(nic, "domainNameLabelPrefix"); prefix != "" {
				pip["dnsSettings"] = map[string]interface{}{"domainNameLabel": prefix}
			}
			ipConfig["publicIPAddressConfiguration"] = map[string]interface{}{
				"name":       publicIPName(name),
				"properties": pip,
			}
		}
		props := map[string]interface{}{
			"primary":                     values.GetBool(nic, "isPrimary"),
			"enableIPForwarding":          values.GetBool(nic, "enableIPForwarding"),
			"enableAcceleratedNetworking": values.GetBool(nic, "enableAcceleratedNetworking"),
			"ipConfigurations": []interface{}{
				map[string]interface{}{"name": "ipconfig1", "properties": ipConfig},
			},
		}
		if dns := values.Strings(nic["dnsServers"]); len(dns) > 0 {
			props["dnsSettings"] = map[string]interface{}{"dnsServers": values.ToAny(dns)}
		}
		nicConfigs = append(nicConfigs, map[string]interface{}{
			"name":       fmt.Sprintf("%s-nic%d", name, j+1),
			"properties": props,
		})
	}

	osProfile := b.osProfile()
	osProfile[scaleSetComputerName] = values.GetString(b.vm, "computerNamePrefix")

	out := stamp(ss, name)
	out["tags"] = tags(ss)
	out["sku"] = map[string]interface{}{
		"name":     values.GetString(b.vm, "size"),
		"tier":     "Standard",
		"capacity": values.GetInt(b.vm, "vmCount", 1),
	}
	out["properties"] = map[string]interface{}{
		"upgradePolicy":        map[string]interface{}{"mode": values.GetString(ss, "upgradePolicy")},
		"overprovision":        values.GetBool(ss, "overprovision"),
		"singlePlacementGroup": values.GetBool(ss, "singlePlacementGroup"),
		"virtualMachineProfile": map[string]interface{}{
			"osProfile":          osProfile,
			"storageProfile":     b.storageProfile("", 0),
			"networkProfile":     map[string]interface{}{"networkInterfaceConfigurations": orEmpty(nicConfigs)},
			"diagnosticsProfile": b.diagnosticsProfile(0),
		},
	}

	auto := values.GetMap(ss, "autoScaleSettings")
	if auto == nil {
		return out, nil
	}
	return out, transformAutoScale(b.r, ss, auto, name)
}

func transformAutoScale(r *refs, ss, auto map[string]interface{}, scaleSetName string) map[string]interface{} {
	target := r.of(ss, typeScaleSet, scaleSetName)
	enabled := true
	if v, ok := values.Bool(auto["enabled"]); ok {
		enabled = v
	}

	var profiles []interface{}
	for _, p := range values.Maps(auto["profiles"]) {
		var rules []interface{}
		for _, rule := range values.Maps(p["rules"]) {
			trigger := values.CloneMap(values.GetMap(rule, "metricTrigger"))
			trigger["metricResourceUri"] = target
			action := values.CloneMap(values.GetMap(rule, "scaleAction"))
			action["value"] = fmt.Sprint(values.GetInt(action, "value", 1))
			rules = append(rules, map[string]interface{}{
				"metricTrigger": trigger,
				"scaleAction":   action,
			})
		}
		profiles = append(profiles, map[string]interface{}{
			"name": values.GetString(p, "name"),
			"capacity": map[string]interface{}{
				"minimum": fmt.Sprint(values.GetInt(p, "capacity.minimum", 0)),
				"maximum": fmt.Sprint(values.GetInt(p, "capacity.maximum", 0)),
				"default": fmt.Sprint(values.GetInt(p, "capacity.default", 0)),
			},
			"rules": orEmpty(rules),
		})
	}

	name := scaleSetName + "-auto"
	out := stamp(ss, name)
	out["tags"] = tags(ss)
	out["properties"] = map[string]interface{}{
		"name":              name,
		"enabled":           enabled,
		"targetResourceUri": target,
		"profiles":          orEmpty(profiles),
	}
	return out
}
