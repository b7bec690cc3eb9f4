package blocks

import (
	"strings"

	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const typeAppGWChild = "Microsoft.Network/applicationGateways/"

var (
	appGatewaySizes = []string{"Standard_Small", "Standard_Medium", "Standard_Large", "WAF_Medium", "WAF_Large", "Standard_v2", "WAF_v2"}
	appGatewayTiers = []string{"Standard", "WAF", "Standard_v2", "WAF_v2"}

	sslPolicyTypes         = []string{"Predefined", "Custom"}
	sslPredefinedPolicies  = []string{"AppGwSslPolicy20150501", "AppGwSslPolicy20170401", "AppGwSslPolicy20170401S"}
	sslProtocols           = []string{"TLSv1_0", "TLSv1_1", "TLSv1_2"}
	redirectTypes          = []string{"Permanent", "Found", "SeeOther", "Temporary"}
	wafRuleSetVersions     = []string{"2.2.9", "3.0"}
	appGWBoundaries        = resources.Boundaries("virtualNetwork", "publicIpAddress")
)

func appGWFrontendTemplate() map[string]interface{} {
	return map[string]interface{}{
		"name":                   defaultFrontendName,
		"applicationGatewayType": "Public",
	}
}

func applicationGatewayDefaults() map[string]interface{} {
	return map[string]interface{}{
		"sku": map[string]interface{}{
			"size":     "Standard_Medium",
			"tier":     "Standard",
			"capacity": 2,
		},
		"gatewayIPConfigurations":       []interface{}{},
		"sslCertificates":               []interface{}{},
		"authenticationCertificates":    []interface{}{},
		"frontendIPConfigurations":      []interface{}{appGWFrontendTemplate()},
		"frontendPorts":                 []interface{}{},
		"backendAddressPools":           []interface{}{},
		"backendHttpSettingsCollection": []interface{}{},
		"httpListeners":                 []interface{}{},
		"urlPathMaps":                   []interface{}{},
		"requestRoutingRules":           []interface{}{},
		"probes":                        []interface{}{},
		"redirectConfigurations":        []interface{}{},
		"webApplicationFirewallConfiguration": map[string]interface{}{
			"enabled":        false,
			"firewallMode":   "Prevention",
			"ruleSetType":    "OWASP",
			"ruleSetVersion": "3.0",
		},
		"tags": map[string]interface{}{},
	}
}

// applicationGatewayPolicy drops the default frontend name once the user
// supplies any frontend configuration of their own.
func applicationGatewayPolicy() merge.Policy {
	return merge.Policy{
		"frontendIPConfigurations": mergeEachWithout(appGWFrontendTemplate(), nil, "name"),
		"backendHttpSettingsCollection": each(map[string]interface{}{
			"port":                           80,
			"protocol":                       "Http",
			"cookieBasedAffinity":            "Disabled",
			"pickHostNameFromBackendAddress": false,
			"probeEnabled":                   true,
			"requestTimeout":                 30,
		}, nil),
		"httpListeners": each(map[string]interface{}{
			"protocol":                    "Http",
			"requireServerNameIndication": false,
		}, nil),
		"requestRoutingRules": each(map[string]interface{}{
			"ruleType": "Basic",
		}, nil),
		"probes": each(map[string]interface{}{
			"protocol":                            "Http",
			"interval":                            30,
			"timeout":                             30,
			"unhealthyThreshold":                  3,
			"pickHostNameFromBackendHttpSettings": false,
			"minServers":                          0,
			"match":                               map[string]interface{}{},
		}, nil),
		"redirectConfigurations": each(map[string]interface{}{
			"includePath":        true,
			"includeQueryString": true,
		}, nil),
	}
}

func mergeApplicationGatewayObject(settings, userDefaults map[string]interface{}) map[string]interface{} {
	return merge.Object(settings, applicationGatewayPolicy(), applicationGatewayDefaults(), userDefaults)
}

// MergeApplicationGateway merges and places application gateway settings.
func MergeApplicationGateway(in Input) ([]map[string]interface{}, error) {
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		out[i] = resources.SetupObject(mergeApplicationGatewayObject(item, in.Defaults), in.Context, appGWBoundaries)
	}
	return out, nil
}

func isV2Sku(tier string) bool {
	return strings.HasSuffix(tier, "_v2")
}

func isWAFTier(tier string) bool {
	return strings.HasPrefix(tier, "WAF")
}

func appGatewaySkuRules() validation.Rules {
	return validation.Rules{
		{Field: "size", Check: validation.IsOneOf(appGatewaySizes...)},
		{Field: "tier", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if r := validation.IsOneOf(appGatewayTiers...)(value, parent); !r.Valid {
				return r
			}
			tier, _ := value.(string)
			size := values.GetString(parent, "size")
			switch {
			case isV2Sku(tier):
				return validation.Check(size == tier, "For v2 tiers the sku size must equal the tier")
			case tier == "WAF":
				return validation.Check(size == "WAF_Medium" || size == "WAF_Large",
					"WAF tier requires WAF_Medium or WAF_Large")
			default:
				return validation.Check(strings.HasPrefix(size, "Standard_") && !isV2Sku(size),
					"Standard tier requires Standard_Small, Standard_Medium or Standard_Large")
			}
		}},
		{Field: "capacity", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if isV2Sku(values.GetString(parent, "tier")) {
				return validation.IsInRange(1, 125)(value, parent)
			}
			return validation.IsInRange(1, 10)(value, parent)
		}},
	}
}

func sslPolicyRules() validation.Rules {
	return validation.Rules{
		{Field: "policyType", Check: validation.IsOneOf(sslPolicyTypes...)},
		{Field: "policyName", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if parent["policyType"] == "Predefined" {
				return validation.IsOneOf(sslPredefinedPolicies...)(value, parent)
			}
			return validation.Check(value == nil, "policyName can only be specified for Predefined policies")
		}},
		{Field: "minProtocolVersion", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if parent["policyType"] == "Custom" {
				return validation.IsOneOf(sslProtocols...)(value, parent)
			}
			return validation.Check(value == nil, "minProtocolVersion can only be specified for Custom policies")
		}},
		{Field: "cipherSuites", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if parent["policyType"] == "Custom" {
				return validation.NonEmptyEach(validation.NotNullOrWhitespace)(value, parent)
			}
			return validation.Check(value == nil, "cipherSuites can only be specified for Custom policies")
		}},
		{Field: "disabledSslProtocols", Check: validation.Optional(validation.Each(validation.IsOneOf(sslProtocols...)))},
	}
}

// applicationGatewayRules validates gw, resolving every name reference
// against the sibling lists of gw.
func applicationGatewayRules(gw map[string]interface{}) validation.Rules {
	tier := values.GetString(gw, "sku.tier")
	name := validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace}

	return validation.Rules{
		name,
		{Field: "sku", Check: validation.Nested(appGatewaySkuRules())},
		{Field: "gatewayIPConfigurations", Check: nonEmptyEachOf(validation.Rules{
			name,
			{Field: "subnetName", Check: validation.NotNullOrWhitespace},
		})},
		{Field: "sslCertificates", Check: eachOf(validation.Rules{
			name,
			{Field: "data", Check: validation.NotNullOrWhitespace},
			{Field: "password", Check: validation.NotNullOrWhitespace},
		})},
		{Field: "authenticationCertificates", Check: eachOf(validation.Rules{
			name,
			{Field: "data", Check: validation.NotNullOrWhitespace},
		})},
		{Field: "frontendIPConfigurations", Check: nonEmptyEachOf(validation.Rules{
			name,
			{Field: "applicationGatewayType", Check: validation.IsOneOf("Public", "Internal")},
			{Field: "internalApplicationGatewaySettings", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["applicationGatewayType"] != "Internal" {
					return validation.OK()
				}
				if value == nil {
					return validation.Fail("internalApplicationGatewaySettings must be specified for Internal frontends")
				}
				return validation.Recurse(validation.Rules{
					{Field: "subnetName", Check: validation.NotNullOrWhitespace},
					{Field: "privateIPAddress", Check: validation.Optional(validation.IsValidIPAddress)},
				})
			}},
		})},
		{Field: "frontendIPConfigurations", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
			public, internal := 0, 0
			for _, fe := range values.Maps(value) {
				switch fe["applicationGatewayType"] {
				case "Public":
					public++
				case "Internal":
					internal++
				}
			}
			return validation.Check(public <= 1 && internal <= 1,
				"Only one Public and one Internal frontend IP configuration are allowed")
		}},
		{Field: "frontendPorts", Check: nonEmptyEachOf(validation.Rules{
			name,
			{Field: "port", Check: validation.IsInRange(1, 65535)},
		})},
		{Field: "backendAddressPools", Check: nonEmptyEachOf(validation.Rules{
			name,
			{Field: "backendAddresses", Check: eachOf(validation.Rules{
				{Field: "ipAddress", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
					if value == nil {
						return validation.Check(!validation.IsNullOrWhitespace(parent["fqdn"]),
							"Either ipAddress or fqdn must be specified")
					}
					return validation.IsValidIPAddress(value, parent)
				}},
				{Field: "fqdn", Check: validation.Optional(validation.NotNullOrWhitespace)},
			})},
		})},
		{Field: "backendHttpSettingsCollection", Check: nonEmptyEachOf(validation.Rules{
			name,
			{Field: "port", Check: validation.IsInRange(1, 65535)},
			{Field: "protocol", Check: validation.IsOneOf("Http", "Https")},
			{Field: "cookieBasedAffinity", Check: validation.IsOneOf("Enabled", "Disabled")},
			{Field: "pickHostNameFromBackendAddress", Check: validation.IsBoolean},
			{Field: "probeEnabled", Check: validation.IsBoolean},
			{Field: "probeName", Check: optionalExists(gw, "probes")},
			{Field: "requestTimeout", Check: validation.IsInRange(1, 86400)},
			{Field: "authenticationCertificates", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if value == nil {
					return validation.OK()
				}
				if parent["protocol"] != "Https" {
					return validation.Fail("authenticationCertificates can only be specified for Https")
				}
				return eachExists(gw, "authenticationCertificates")(value, parent)
			}},
		})},
		{Field: "httpListeners", Check: nonEmptyEachOf(validation.Rules{
			name,
			{Field: "frontendIPConfigurationName", Check: exists(gw, "frontendIPConfigurations")},
			{Field: "frontendPortName", Check: exists(gw, "frontendPorts")},
			{Field: "protocol", Check: validation.IsOneOf("Http", "Https")},
			{Field: "sslCertificateName", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["protocol"] == "Https" {
					return exists(gw, "sslCertificates")(value, parent)
				}
				return validation.Check(value == nil, "sslCertificateName can only be specified for Https")
			}},
			{Field: "requireServerNameIndication", Check: validation.IsBoolean},
			{Field: "hostName", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if values.GetBool(parent, "requireServerNameIndication") {
					return validation.Check(!validation.IsNullOrWhitespace(value),
						"hostName must be specified when requireServerNameIndication is true")
				}
				return validation.OK()
			}},
		})},
		{Field: "urlPathMaps", Check: eachOf(validation.Rules{
			name,
			{Field: "defaultBackendAddressPoolName", Check: exists(gw, "backendAddressPools")},
			{Field: "defaultBackendHttpSettingsName", Check: exists(gw, "backendHttpSettingsCollection")},
			{Field: "pathRules", Check: nonEmptyEachOf(validation.Rules{
				name,
				{Field: "paths", Check: validation.NonEmptyEach(validation.NotNullOrWhitespace)},
				{Field: "backendAddressPoolName", Check: exists(gw, "backendAddressPools")},
				{Field: "backendHttpSettingsName", Check: exists(gw, "backendHttpSettingsCollection")},
			})},
		})},
		{Field: "requestRoutingRules", Check: nonEmptyEachOf(validation.Rules{
			name,
			{Field: "ruleType", Check: validation.IsOneOf("Basic", "PathBasedRouting")},
			{Field: "httpListenerName", Check: exists(gw, "httpListeners")},
			{Field: "backendAddressPoolName", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["ruleType"] != "Basic" || parent["redirectConfigurationName"] != nil {
					return validation.Check(value == nil, "backendAddressPoolName can only be specified for Basic rules without redirection")
				}
				return exists(gw, "backendAddressPools")(value, parent)
			}},
			{Field: "backendHttpSettingsName", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["ruleType"] != "Basic" || parent["redirectConfigurationName"] != nil {
					return validation.Check(value == nil, "backendHttpSettingsName can only be specified for Basic rules without redirection")
				}
				return exists(gw, "backendHttpSettingsCollection")(value, parent)
			}},
			{Field: "urlPathMapName", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["ruleType"] == "PathBasedRouting" {
					return exists(gw, "urlPathMaps")(value, parent)
				}
				return validation.Check(value == nil, "urlPathMapName can only be specified for PathBasedRouting rules")
			}},
			{Field: "redirectConfigurationName", Check: optionalExists(gw, "redirectConfigurations")},
		})},
		{Field: "probes", Check: eachOf(validation.Rules{
			name,
			{Field: "protocol", Check: validation.IsOneOf("Http", "Https")},
			{Field: "host", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if values.GetBool(parent, "pickHostNameFromBackendHttpSettings") {
					return validation.Check(value == nil, "host cannot be specified when pickHostNameFromBackendHttpSettings is true")
				}
				return validation.NotNullOrWhitespace(value, parent)
			}},
			{Field: "path", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
				s, _ := value.(string)
				return validation.Check(strings.HasPrefix(s, "/"), "path must start with /")
			}},
			{Field: "interval", Check: validation.IsInRange(1, 86400)},
			{Field: "timeout", Check: validation.IsInRange(1, 86400)},
			{Field: "unhealthyThreshold", Check: validation.IsInRange(1, 20)},
			{Field: "pickHostNameFromBackendHttpSettings", Check: validation.IsBoolean},
			{Field: "minServers", Check: validation.IsInRange(0, 100)},
			{Field: "match", Check: validation.Optional(validation.Nested(validation.Rules{
				{Field: "statusCodes", Check: validation.Optional(validation.Each(validation.NotNullOrWhitespace))},
			}))},
		})},
		{Field: "redirectConfigurations", Check: eachOf(validation.Rules{
			name,
			{Field: "redirectType", Check: validation.IsOneOf(redirectTypes...)},
			{Field: "targetListenerName", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["targetUrl"] != nil {
					return validation.Check(value == nil, "Only one of targetListenerName or targetUrl can be specified")
				}
				return exists(gw, "httpListeners")(value, parent)
			}},
			{Field: "targetUrl", Check: validation.Optional(validation.IsValidURL)},
			{Field: "includePath", Check: validation.IsBoolean},
			{Field: "includeQueryString", Check: validation.IsBoolean},
		})},
		{Field: "webApplicationFirewallConfiguration", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
			if !isWAFTier(tier) {
				return validation.OK()
			}
			if value == nil {
				return validation.Fail("webApplicationFirewallConfiguration must be specified for WAF tiers")
			}
			return validation.Recurse(validation.Rules{
				{Field: "enabled", Check: validation.IsBoolean},
				{Field: "firewallMode", Check: validation.IsOneOf("Detection", "Prevention")},
				{Field: "ruleSetType", Check: validation.IsOneOf("OWASP")},
				{Field: "ruleSetVersion", Check: validation.IsOneOf(wafRuleSetVersions...)},
				{Field: "disabledRuleGroups", Check: eachOf(validation.Rules{
					{Field: "ruleGroupName", Check: validation.NotNullOrWhitespace},
				})},
			})
		}},
		{Field: "sslPolicy", Check: validation.Optional(validation.Nested(sslPolicyRules()))},
		{Field: "virtualNetwork", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
			if value == nil {
				return validation.Fail("virtualNetwork must be specified")
			}
			return validation.Recurse(validation.Rules{name})
		}},
		{Field: "tags", Check: validation.Tags},
	}
}

// transformApplicationGateway builds the application gateway stamp and the
// public IP of its public frontend.
func transformApplicationGateway(r *refs, gw map[string]interface{}) (map[string]interface{}, []interface{}) {
	name := values.GetString(gw, "name")
	tier := values.GetString(gw, "sku.tier")
	vnet := values.GetMap(gw, "virtualNetwork")
	vnetName := values.GetString(vnet, "name")
	child := func(kind, childName string) map[string]interface{} {
		return ref(r.of(gw, typeAppGWChild+kind, name, childName))
	}
	subnet := func(subnetName string) map[string]interface{} {
		return ref(r.of(vnet, typeSubnet, vnetName, subnetName))
	}
	named := func(n string, props map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"name": n, "properties": props}
	}

	var pips []interface{}
	props := map[string]interface{}{
		"sku": map[string]interface{}{
			"name":     values.GetString(gw, "sku.size"),
			"tier":     tier,
			"capacity": values.GetInt(gw, "sku.capacity", 2),
		},
	}

	var gwIPs []interface{}
	for _, c := range values.Maps(gw["gatewayIPConfigurations"]) {
		gwIPs = append(gwIPs, named(values.GetString(c, "name"), map[string]interface{}{
			"subnet": subnet(values.GetString(c, "subnetName")),
		}))
	}
	props["gatewayIPConfigurations"] = orEmpty(gwIPs)

	var certs []interface{}
	for _, c := range values.Maps(gw["sslCertificates"]) {
		certs = append(certs, named(values.GetString(c, "name"), map[string]interface{}{
			"data":     values.GetString(c, "data"),
			"password": values.GetString(c, "password"),
		}))
	}
	props["sslCertificates"] = orEmpty(certs)

	var authCerts []interface{}
	for _, c := range values.Maps(gw["authenticationCertificates"]) {
		authCerts = append(authCerts, named(values.GetString(c, "name"), map[string]interface{}{
			"data": values.GetString(c, "data"),
		}))
	}
	props["authenticationCertificates"] = orEmpty(authCerts)

	var frontends []interface{}
	for _, fe := range values.Maps(gw["frontendIPConfigurations"]) {
		feName := values.GetString(fe, "name")
		feProps := map[string]interface{}{}
		if fe["applicationGatewayType"] == "Internal" {
			internal := values.GetMap(fe, "internalApplicationGatewaySettings")
			feProps["subnet"] = subnet(values.GetString(internal, "subnetName"))
			if ip := values.GetString(internal, "privateIPAddress"); ip != "" {
				feProps["privateIPAllocationMethod"] = "Static"
				feProps["privateIPAddress"] = ip
			} else {
				feProps["privateIPAllocationMethod"] = "Dynamic"
			}
		} else {
			pipName := publicIPName(name + "-" + feName)
			pipSettings := withoutKeys(publicIPDefaults(), "idleTimeoutInMinutes")
			if isV2Sku(tier) {
				pipSettings["sku"] = "Standard"
				pipSettings["publicIPAllocationMethod"] = "Static"
			}
			pips = append(pips, transformPublicIP(pipSettings, gw, pipName))
			feProps["publicIPAddress"] = ref(r.of(gw, typePublicIP, pipName))
		}
		frontends = append(frontends, named(feName, feProps))
	}
	props["frontendIPConfigurations"] = orEmpty(frontends)

	var ports []interface{}
	for _, p := range values.Maps(gw["frontendPorts"]) {
		ports = append(ports, named(values.GetString(p, "name"), map[string]interface{}{
			"port": values.GetInt(p, "port", 0),
		}))
	}
	props["frontendPorts"] = orEmpty(ports)

	var pools []interface{}
	for _, p := range values.Maps(gw["backendAddressPools"]) {
		pools = append(pools, named(values.GetString(p, "name"), map[string]interface{}{
			"backendAddresses": list(values.Clone(p["backendAddresses"])),
		}))
	}
	props["backendAddressPools"] = orEmpty(pools)

	var httpSettings []interface{}
	for _, s := range values.Maps(gw["backendHttpSettingsCollection"]) {
		sProps := map[string]interface{}{
			"port":                           values.GetInt(s, "port", 80),
			"protocol":                       values.GetString(s, "protocol"),
			"cookieBasedAffinity":            values.GetString(s, "cookieBasedAffinity"),
			"pickHostNameFromBackendAddress": values.GetBool(s, "pickHostNameFromBackendAddress"),
			"requestTimeout":                 values.GetInt(s, "requestTimeout", 30),
		}
		if probe := values.GetString(s, "probeName"); probe != "" && values.GetBool(s, "probeEnabled") {
			sProps["probe"] = child("probes", probe)
		}
		var certRefs []interface{}
		for _, c := range values.Strings(s["authenticationCertificates"]) {
			certRefs = append(certRefs, child("authenticationCertificates", c))
		}
		if len(certRefs) > 0 {
			sProps["authenticationCertificates"] = certRefs
		}
		httpSettings = append(httpSettings, named(values.GetString(s, "name"), sProps))
	}
	props["backendHttpSettingsCollection"] = orEmpty(httpSettings)

	var listeners []interface{}
	for _, l := range values.Maps(gw["httpListeners"]) {
		lProps := map[string]interface{}{
			"frontendIPConfiguration":     child("frontendIPConfigurations", values.GetString(l, "frontendIPConfigurationName")),
			"frontendPort":                child("frontendPorts", values.GetString(l, "frontendPortName")),
			"protocol":                    values.GetString(l, "protocol"),
			"requireServerNameIndication": values.GetBool(l, "requireServerNameIndication"),
		}
		if cert := values.GetString(l, "sslCertificateName"); cert != "" {
			lProps["sslCertificate"] = child("sslCertificates", cert)
		}
		if host := values.GetString(l, "hostName"); host != "" {
			lProps["hostName"] = host
		}
		listeners = append(listeners, named(values.GetString(l, "name"), lProps))
	}
	props["httpListeners"] = orEmpty(listeners)

	var pathMaps []interface{}
	for _, m := range values.Maps(gw["urlPathMaps"]) {
		var rules []interface{}
		for _, pr := range values.Maps(m["pathRules"]) {
			rules = append(rules, named(values.GetString(pr, "name"), map[string]interface{}{
				"paths":               list(values.Clone(pr["paths"])),
				"backendAddressPool":  child("backendAddressPools", values.GetString(pr, "backendAddressPoolName")),
				"backendHttpSettings": child("backendHttpSettingsCollection", values.GetString(pr, "backendHttpSettingsName")),
			}))
		}
		pathMaps = append(pathMaps, named(values.GetString(m, "name"), map[string]interface{}{
			"defaultBackendAddressPool":  child("backendAddressPools", values.GetString(m, "defaultBackendAddressPoolName")),
			"defaultBackendHttpSettings": child("backendHttpSettingsCollection", values.GetString(m, "defaultBackendHttpSettingsName")),
			"pathRules":                  orEmpty(rules),
		}))
	}
	props["urlPathMaps"] = orEmpty(pathMaps)

	var routing []interface{}
	for _, rr := range values.Maps(gw["requestRoutingRules"]) {
		rProps := map[string]interface{}{
			"ruleType":     values.GetString(rr, "ruleType"),
			"httpListener": child("httpListeners", values.GetString(rr, "httpListenerName")),
		}
		if v := values.GetString(rr, "backendAddressPoolName"); v != "" {
			rProps["backendAddressPool"] = child("backendAddressPools", v)
		}
		if v := values.GetString(rr, "backendHttpSettingsName"); v != "" {
			rProps["backendHttpSettings"] = child("backendHttpSettingsCollection", v)
		}
		if v := values.GetString(rr, "urlPathMapName"); v != "" {
			rProps["urlPathMap"] = child("urlPathMaps", v)
		}
		if v := values.GetString(rr, "redirectConfigurationName"); v != "" {
			rProps["redirectConfiguration"] = child("redirectConfigurations", v)
		}
		routing = append(routing, named(values.GetString(rr, "name"), rProps))
	}
	props["requestRoutingRules"] = orEmpty(routing)

	var probes []interface{}
	for _, p := range values.Maps(gw["probes"]) {
		pProps := map[string]interface{}{
			"protocol":                            values.GetString(p, "protocol"),
			"path":                                values.GetString(p, "path"),
			"interval":                            values.GetInt(p, "interval", 30),
			"timeout":                             values.GetInt(p, "timeout", 30),
			"unhealthyThreshold":                  values.GetInt(p, "unhealthyThreshold", 3),
			"pickHostNameFromBackendHttpSettings": values.GetBool(p, "pickHostNameFromBackendHttpSettings"),
			"minServers":                          values.GetInt(p, "minServers", 0),
		}
		if host := values.GetString(p, "host"); host != "" {
			pProps["host"] = host
		}
		if match := values.GetMap(p, "match"); len(match) > 0 {
			pProps["match"] = values.CloneMap(match)
		}
		probes = append(probes, named(values.GetString(p, "name"), pProps))
	}
	props["probes"] = orEmpty(probes)

	var redirects []interface{}
	for _, rc := range values.Maps(gw["redirectConfigurations"]) {
		rcProps := map[string]interface{}{
			"redirectType":       values.GetString(rc, "redirectType"),
			"includePath":        values.GetBool(rc, "includePath"),
			"includeQueryString": values.GetBool(rc, "includeQueryString"),
		}
		if l := values.GetString(rc, "targetListenerName"); l != "" {
			rcProps["targetListener"] = child("httpListeners", l)
		}
		if u := values.GetString(rc, "targetUrl"); u != "" {
			rcProps["targetUrl"] = u
		}
		redirects = append(redirects, named(values.GetString(rc, "name"), rcProps))
	}
	props["redirectConfigurations"] = orEmpty(redirects)

	if isWAFTier(tier) {
		props["webApplicationFirewallConfiguration"] = values.CloneMap(values.GetMap(gw, "webApplicationFirewallConfiguration"))
	}
	if policy := values.GetMap(gw, "sslPolicy"); len(policy) > 0 {
		props["sslPolicy"] = values.CloneMap(policy)
	}

	out := stamp(gw, name)
	out["tags"] = tags(gw)
	out["properties"] = props
	return out, pips
}

// ProcessApplicationGateway runs the application gateway building block.
func ProcessApplicationGateway(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	merged, err := MergeApplicationGateway(in)
	if err != nil {
		return nil, err
	}
	if err := check(in.Settings, merged, root(func(gw map[string]interface{}) validation.Rules {
		return placementRules().With(applicationGatewayRules(gw)...)
	})); err != nil {
		return nil, err
	}

	r := &refs{}
	var gws, pips []interface{}
	for _, gw := range merged {
		gwStamp, ips := transformApplicationGateway(r, gw)
		gws = append(gws, gwStamp)
		pips = append(pips, ips...)
	}
	if r.err != nil {
		return nil, r.err
	}

	return &Result{
		ResourceGroups: resources.ExtractResourceGroups(gws, pips),
		Parameters: map[string]interface{}{
			"applicationGateways": orEmpty(gws),
			"publicIpAddresses":   orEmpty(pips),
		},
	}, nil
}
