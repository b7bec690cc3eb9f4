package blocks

import (
	"fmt"

	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const (
	typeLoadBalancer       = "Microsoft.Network/loadBalancers"
	typeLBFrontendIPConfig = "Microsoft.Network/loadBalancers/frontendIPConfigurations"
	typeLBProbe            = "Microsoft.Network/loadBalancers/probes"

	defaultFrontendName = "default-feConfig"
)

var lbBoundaries = resources.Boundaries("virtualNetwork", "publicIpAddress")

func lbFrontendTemplate() map[string]interface{} {
	return map[string]interface{}{
		"name":             defaultFrontendName,
		"loadBalancerType": "Public",
		"internalLoadBalancerSettings": map[string]interface{}{
			"privateIPAllocationMethod": "Dynamic",
		},
		"publicIpAddress": withoutKeys(publicIPDefaults(), "sku"),
	}
}

func loadBalancerDefaults() map[string]interface{} {
	return map[string]interface{}{
		"sku":                      "Basic",
		"frontendIPConfigurations": []interface{}{lbFrontendTemplate()},
		"loadBalancingRules":       []interface{}{},
		"probes":                   []interface{}{},
		"backendPools":             []interface{}{},
		"inboundNatRules":          []interface{}{},
		"inboundNatPools":          []interface{}{},
		"tags":                     map[string]interface{}{},
	}
}

func loadBalancerPolicy() merge.Policy {
	return merge.Policy{
		"frontendIPConfigurations": mergeEachWithout(lbFrontendTemplate(), nil, "name"),
		"loadBalancingRules": each(map[string]interface{}{
			"protocol":             "Tcp",
			"enableFloatingIP":     false,
			"idleTimeoutInMinutes": 4,
			"loadDistribution":     "Default",
		}, nil),
		"probes": each(map[string]interface{}{
			"protocol":          "Tcp",
			"intervalInSeconds": 15,
			"numberOfProbes":    2,
		}, nil),
		"inboundNatRules": each(map[string]interface{}{
			"protocol":             "Tcp",
			"enableFloatingIP":     false,
			"idleTimeoutInMinutes": 4,
		}, nil),
		"inboundNatPools": each(map[string]interface{}{
			"protocol": "Tcp",
		}, nil),
	}
}

// mergeLoadBalancerObject merges one load balancer over the built-in and
// user defaults.
func mergeLoadBalancerObject(settings, userDefaults map[string]interface{}) map[string]interface{} {
	return merge.Object(settings, loadBalancerPolicy(), loadBalancerDefaults(), userDefaults)
}

// MergeLoadBalancer merges and places load balancer settings.
func MergeLoadBalancer(in Input) ([]map[string]interface{}, error) {
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		merged := mergeLoadBalancerObject(item, in.Defaults)
		out[i] = resources.SetupObject(merged, in.Context, lbBoundaries)
	}
	return out, nil
}

func lbFrontendRules() validation.Rules {
	return validation.Rules{
		{Field: "name", Check: validation.NotNullOrWhitespace},
		{Field: "loadBalancerType", Check: validation.IsOneOf("Public", "Internal")},
		{Field: "internalLoadBalancerSettings", Check: func(_ interface{}, parent map[string]interface{}) validation.Result {
			if parent["loadBalancerType"] != "Internal" {
				return validation.OK()
			}
			return validation.Recurse(validation.Rules{
				{Field: "privateIPAllocationMethod", Check: validation.IsOneOf("Static", "Dynamic")},
				{Field: "privateIPAddress", Check: func(value interface{}, p map[string]interface{}) validation.Result {
					if p["privateIPAllocationMethod"] != "Static" {
						return validation.OK()
					}
					return validation.Check(validation.IPAddress(value),
						"If privateIPAllocationMethod is Static, privateIPAddress must be a valid IP address")
				}},
				{Field: "subnetName", Check: validation.NotNullOrWhitespace},
			})
		}},
		{Field: "publicIpAddress", Check: func(_ interface{}, parent map[string]interface{}) validation.Result {
			if parent["loadBalancerType"] != "Public" {
				return validation.OK()
			}
			return validation.Recurse(publicIPRules().Without("sku"))
		}},
	}
}

func lbPortRule(lower, upper int) validation.Func {
	return validation.IsInRange(lower, upper)
}

// loadBalancerRules validates lb. vmCount is the number of VMs the NAT rules
// expand to, or 0 for a standalone load balancer.
func loadBalancerRules(lb map[string]interface{}, vmCount int) validation.Rules {
	internal := false
	for _, fe := range values.Maps(lb["frontendIPConfigurations"]) {
		if fe["loadBalancerType"] == "Internal" {
			internal = true
		}
	}

	return validation.Rules{
		{Field: "name", Check: validation.NotNullOrWhitespace},
		{Field: "sku", Check: validation.IsOneOf("Basic", "Standard")},
		{Field: "frontendIPConfigurations", Check: nonEmptyEachOf(lbFrontendRules())},
		{Field: "frontendIPConfigurations", Check: uniqueNames},
		{Field: "backendPools", Check: eachOf(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
		})},
		{Field: "probes", Check: eachOf(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
			{Field: "protocol", Check: validation.IsOneOf("Http", "Https", "Tcp")},
			{Field: "port", Check: lbPortRule(1, 65535)},
			{Field: "intervalInSeconds", Check: validation.IsInRange(5, 2147483646)},
			{Field: "numberOfProbes", Check: validation.IsInRange(1, 2147483647)},
			{Field: "requestPath", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["protocol"] == "Tcp" {
					return validation.Check(value == nil, "requestPath cannot be specified for Tcp probes")
				}
				return validation.Check(!validation.IsNullOrWhitespace(value),
					"requestPath must be specified for Http and Https probes")
			}},
		})},
		{Field: "loadBalancingRules", Check: eachOf(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
			{Field: "frontendIPConfigurationName", Check: exists(lb, "frontendIPConfigurations")},
			{Field: "backendPoolName", Check: exists(lb, "backendPools")},
			{Field: "probeName", Check: optionalExists(lb, "probes")},
			{Field: "protocol", Check: validation.IsOneOf("Tcp", "Udp", "All")},
			{Field: "frontendPort", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["protocol"] == "All" {
					return validation.Check(values.GetInt(parent, "frontendPort", 0) == 0,
						"frontendPort must be 0 when protocol is All")
				}
				return lbPortRule(1, 65534)(value, parent)
			}},
			{Field: "backendPort", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["protocol"] == "All" {
					return validation.Check(values.GetInt(parent, "backendPort", 0) == 0,
						"backendPort must be 0 when protocol is All")
				}
				return lbPortRule(1, 65535)(value, parent)
			}},
			{Field: "enableFloatingIP", Check: validation.IsBoolean},
			{Field: "idleTimeoutInMinutes", Check: validation.IsInRange(4, 30)},
			{Field: "loadDistribution", Check: validation.IsOneOf("Default", "SourceIP", "SourceIPProtocol")},
		})},
		{Field: "inboundNatRules", Check: eachOf(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
			{Field: "frontendIPConfigurationName", Check: exists(lb, "frontendIPConfigurations")},
			{Field: "startingFrontendPort", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				start, ok := values.Int(value)
				last := start + vmCount - 1
				if vmCount == 0 {
					last = start
				}
				return validation.Check(ok && start >= 1 && last <= 65534,
					fmt.Sprintf("startingFrontendPort must be between 1 and %d", 65534-max(vmCount-1, 0)))
			}},
			{Field: "backendPort", Check: lbPortRule(1, 65535)},
			{Field: "protocol", Check: validation.IsOneOf("Tcp", "Udp", "All")},
			{Field: "enableFloatingIP", Check: validation.IsBoolean},
			{Field: "idleTimeoutInMinutes", Check: validation.IsInRange(4, 30)},
		})},
		{Field: "inboundNatPools", Check: eachOf(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
			{Field: "frontendIPConfigurationName", Check: exists(lb, "frontendIPConfigurations")},
			{Field: "startingFrontendPort", Check: lbPortRule(1, 65534)},
			{Field: "frontendPortRangeEnd", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				end, ok := values.Int(value)
				start := values.GetInt(parent, "startingFrontendPort", 0)
				return validation.Check(ok && end > start && end <= 65535,
					"frontendPortRangeEnd must be greater than startingFrontendPort and at most 65535")
			}},
			{Field: "backendPort", Check: lbPortRule(1, 65535)},
			{Field: "protocol", Check: validation.IsOneOf("Tcp", "Udp", "All")},
		})},
		{Field: "virtualNetwork", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
			if !internal {
				return validation.OK()
			}
			if value == nil {
				return validation.Fail("virtualNetwork must be specified for Internal load balancers")
			}
			return validation.Recurse(validation.Rules{{Field: "name", Check: validation.NotNullOrWhitespace}})
		}},
		{Field: "tags", Check: validation.Tags},
	}
}

// transformLoadBalancer builds the load balancer stamp and the public IPs of
// its public frontends. NAT rules expand to one rule per VM when vmCount > 0.
func transformLoadBalancer(r *refs, lb map[string]interface{}, vmCount int) (map[string]interface{}, []interface{}) {
	name := values.GetString(lb, "name")
	sku := values.GetString(lb, "sku")
	childID := func(typ, child string) map[string]interface{} {
		return ref(r.of(lb, typ, name, child))
	}

	var pips []interface{}
	var frontends []interface{}
	for _, fe := range values.Maps(lb["frontendIPConfigurations"]) {
		feName := values.GetString(fe, "name")
		props := map[string]interface{}{}
		if fe["loadBalancerType"] == "Internal" {
			ilb := values.GetMap(fe, "internalLoadBalancerSettings")
			vnet := values.GetMap(lb, "virtualNetwork")
			props["privateIPAllocationMethod"] = values.GetString(ilb, "privateIPAllocationMethod")
			if ip := values.GetString(ilb, "privateIPAddress"); ip != "" {
				props["privateIPAddress"] = ip
			}
			props["subnet"] = ref(r.of(vnet, typeSubnet, values.GetString(vnet, "name"), values.GetString(ilb, "subnetName")))
		} else {
			pipSettings := values.CloneMap(values.GetMap(fe, "publicIpAddress"))
			if pipSettings == nil {
				pipSettings = withoutKeys(publicIPDefaults(), "sku")
			}
			pipSettings["sku"] = sku
			if sku == "Standard" {
				pipSettings["publicIPAllocationMethod"] = "Static"
			}
			pipName := publicIPName(name + "-" + feName)
			pips = append(pips, transformPublicIP(pipSettings, lb, pipName))
			props["publicIPAddress"] = ref(r.of(lb, typePublicIP, pipName))
		}
		frontends = append(frontends, map[string]interface{}{"name": feName, "properties": props})
	}

	var pools []interface{}
	for _, p := range names(lb["backendPools"]) {
		pools = append(pools, map[string]interface{}{"name": p})
	}

	var rules []interface{}
	for _, rule := range values.Maps(lb["loadBalancingRules"]) {
		props := map[string]interface{}{
			"frontendIPConfiguration": childID(typeLBFrontendIPConfig, values.GetString(rule, "frontendIPConfigurationName")),
			"backendAddressPool":      childID(typeLBBackendPool, values.GetString(rule, "backendPoolName")),
			"protocol":                values.GetString(rule, "protocol"),
			"frontendPort":            values.GetInt(rule, "frontendPort", 0),
			"backendPort":             values.GetInt(rule, "backendPort", 0),
			"enableFloatingIP":        values.GetBool(rule, "enableFloatingIP"),
			"idleTimeoutInMinutes":    values.GetInt(rule, "idleTimeoutInMinutes", 4),
			"loadDistribution":        values.GetString(rule, "loadDistribution"),
		}
		if probe := values.GetString(rule, "probeName"); probe != "" {
			props["probe"] = childID(typeLBProbe, probe)
		}
		rules = append(rules, map[string]interface{}{"name": values.GetString(rule, "name"), "properties": props})
	}

	var probes []interface{}
	for _, probe := range values.Maps(lb["probes"]) {
		props := map[string]interface{}{
			"protocol":          values.GetString(probe, "protocol"),
			"port":              values.GetInt(probe, "port", 0),
			"intervalInSeconds": values.GetInt(probe, "intervalInSeconds", 15),
			"numberOfProbes":    values.GetInt(probe, "numberOfProbes", 2),
		}
		if path := values.GetString(probe, "requestPath"); path != "" {
			props["requestPath"] = path
		}
		probes = append(probes, map[string]interface{}{"name": values.GetString(probe, "name"), "properties": props})
	}

	var natRules []interface{}
	for _, nat := range values.Maps(lb["inboundNatRules"]) {
		start := values.GetInt(nat, "startingFrontendPort", 0)
		build := func(ruleName string, port int) map[string]interface{} {
			return map[string]interface{}{
				"name": ruleName,
				"properties": map[string]interface{}{
					"frontendIPConfiguration": childID(typeLBFrontendIPConfig, values.GetString(nat, "frontendIPConfigurationName")),
					"protocol":                values.GetString(nat, "protocol"),
					"frontendPort":            port,
					"backendPort":             values.GetInt(nat, "backendPort", 0),
					"enableFloatingIP":        values.GetBool(nat, "enableFloatingIP"),
					"idleTimeoutInMinutes":    values.GetInt(nat, "idleTimeoutInMinutes", 4),
				},
			}
		}
		natName := values.GetString(nat, "name")
		if vmCount == 0 {
			natRules = append(natRules, build(natName, start))
			continue
		}
		for i := 0; i < vmCount; i++ {
			natRules = append(natRules, build(fmt.Sprintf("%s-%d", natName, i), start+i))
		}
	}

	var natPools []interface{}
	for _, pool := range values.Maps(lb["inboundNatPools"]) {
		natPools = append(natPools, map[string]interface{}{
			"name": values.GetString(pool, "name"),
			"properties": map[string]interface{}{
				"frontendIPConfiguration": childID(typeLBFrontendIPConfig, values.GetString(pool, "frontendIPConfigurationName")),
				"protocol":                values.GetString(pool, "protocol"),
				"frontendPortRangeStart":  values.GetInt(pool, "startingFrontendPort", 0),
				"frontendPortRangeEnd":    values.GetInt(pool, "frontendPortRangeEnd", 0),
				"backendPort":             values.GetInt(pool, "backendPort", 0),
			},
		})
	}

	out := stamp(lb, name)
	out["sku"] = map[string]interface{}{"name": sku}
	out["tags"] = tags(lb)
	out["properties"] = map[string]interface{}{
		"frontendIPConfigurations": orEmpty(frontends),
		"backendAddressPools":      orEmpty(pools),
		"loadBalancingRules":       orEmpty(rules),
		"probes":                   orEmpty(probes),
		"inboundNatRules":          orEmpty(natRules),
		"inboundNatPools":          orEmpty(natPools),
	}
	return out, pips
}

// ProcessLoadBalancer runs the load balancer building block.
func ProcessLoadBalancer(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	merged, err := MergeLoadBalancer(in)
	if err != nil {
		return nil, err
	}
	if err := check(in.Settings, merged, root(func(lb map[string]interface{}) validation.Rules {
		return placementRules().With(loadBalancerRules(lb, 0)...)
	})); err != nil {
		return nil, err
	}

	r := &refs{}
	var lbs, pips []interface{}
	for _, lb := range merged {
		lbStamp, ips := transformLoadBalancer(r, lb, 0)
		lbs = append(lbs, lbStamp)
		pips = append(pips, ips...)
	}
	if r.err != nil {
		return nil, r.err
	}

	return &Result{
		ResourceGroups: resources.ExtractResourceGroups(lbs, pips),
		Parameters: map[string]interface{}{
			"loadBalancers":     orEmpty(lbs),
			"publicIpAddresses": orEmpty(pips),
		},
	}, nil
}

// orEmpty returns items or an empty list for nil.
func orEmpty(items []interface{}) []interface{} {
	if items == nil {
		return []interface{}{}
	}
	return items
}
