package blocks

import (
	"math"

	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const (
	typeVirtualNetworkGateway = "Microsoft.Network/virtualNetworkGateways"

	gatewaySubnetName = "GatewaySubnet"
	gatewayTypeVpn    = "Vpn"
	gatewayTypeER     = "ExpressRoute"
	gatewaySkuBasic   = "Basic"
)

var (
	gatewaySkus = map[string][]string{
		gatewayTypeVpn: {"Basic", "VpnGw1", "VpnGw2", "VpnGw3", "Standard", "HighPerformance"},
		gatewayTypeER:  {"Standard", "HighPerformance", "UltraPerformance"},
	}

	// reservedASNs are used by Azure or IANA and cannot be assigned.
	reservedASNs = map[int]bool{8074: true, 8075: true, 12076: true, 23456: true,
		65515: true, 65517: true, 65518: true, 65519: true, 65520: true}

	gatewayBoundaries = resources.Boundaries("virtualNetwork", "publicIpAddress")
)

func virtualNetworkGatewayDefaults() map[string]interface{} {
	return map[string]interface{}{
		"gatewayType":     gatewayTypeVpn,
		"vpnType":         "RouteBased",
		"sku":             "VpnGw1",
		"enableBgp":       false,
		"publicIpAddress": withoutKeys(publicIPDefaults(), "sku", "idleTimeoutInMinutes"),
		"tags":            map[string]interface{}{},
	}
}

// MergeVirtualNetworkGateway merges and places virtual network gateway settings.
func MergeVirtualNetworkGateway(in Input) ([]map[string]interface{}, error) {
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		merged := merge.Object(item, nil, virtualNetworkGatewayDefaults(), in.Defaults)
		out[i] = resources.SetupObject(merged, in.Context, gatewayBoundaries)
	}
	return out, nil
}

// bgpASN rejects out of range and reserved autonomous system numbers.
func bgpASN(value interface{}, parent map[string]interface{}) validation.Result {
	if r := validation.IsInRange(1, math.MaxUint32)(value, parent); !r.Valid {
		return r
	}
	asn, _ := values.Int(value)
	return validation.Check(!reservedASNs[asn], "asn is reserved")
}

func bgpSettingsRules() validation.Rules {
	return validation.Rules{
		{Field: "asn", Check: bgpASN},
		{Field: "bgpPeeringAddress", Check: validation.Optional(validation.IsValidIPAddress)},
		{Field: "peerWeight", Check: validation.Optional(validation.IsInRange(0, 100))},
	}
}

func virtualNetworkGatewayRules() validation.Rules {
	return placementRules().With(
		validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		validation.Rule{Field: "gatewayType", Check: validation.IsOneOf(gatewayTypeVpn, gatewayTypeER)},
		validation.Rule{Field: "vpnType", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if r := validation.IsOneOf("RouteBased", "PolicyBased")(value, parent); !r.Valid {
				return r
			}
			return validation.Check(value != "PolicyBased" || parent["sku"] == gatewaySkuBasic,
				"PolicyBased gateways require the Basic sku")
		}},
		validation.Rule{Field: "sku", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			skus, ok := gatewaySkus[values.GetString(parent, "gatewayType")]
			if !ok {
				return validation.OK()
			}
			return validation.IsOneOf(skus...)(value, parent)
		}},
		validation.Rule{Field: "enableBgp", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if r := validation.IsBoolean(value, parent); !r.Valid {
				return r
			}
			return validation.Check(value != true || parent["sku"] != gatewaySkuBasic,
				"BGP is not supported by the Basic sku")
		}},
		validation.Rule{Field: "bgpSettings", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if parent["enableBgp"] != true {
				return validation.Check(value == nil, "bgpSettings can only be specified when enableBgp is true")
			}
			return required(bgpSettingsRules(), "bgpSettings must be specified when enableBgp is true")(value, parent)
		}},
		validation.Rule{Field: "virtualNetwork", Check: required(placementRules().With(
			validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		), "virtualNetwork must be specified")},
		validation.Rule{Field: "publicIpAddress", Check: required(publicIPRules().Without("sku"), "publicIpAddress must be specified")},
		validation.Rule{Field: "tags", Check: validation.Tags},
	)
}

func transformVirtualNetworkGateway(r *refs, gw map[string]interface{}) (map[string]interface{}, map[string]interface{}) {
	name := values.GetString(gw, "name")
	vnet := values.GetMap(gw, "virtualNetwork")
	pipName := publicIPName(name)
	pipSettings := values.CloneMap(values.GetMap(gw, "publicIpAddress"))
	pipSettings["sku"] = "Basic"
	pip := transformPublicIP(pipSettings, values.GetMap(gw, "publicIpAddress"), pipName)

	sku := values.GetString(gw, "sku")
	props := map[string]interface{}{
		"gatewayType": values.GetString(gw, "gatewayType"),
		"vpnType":     values.GetString(gw, "vpnType"),
		"sku":         map[string]interface{}{"name": sku, "tier": sku},
		"enableBgp":   values.GetBool(gw, "enableBgp"),
		"ipConfigurations": []interface{}{
			map[string]interface{}{
				"name": name + "-ipconfig",
				"properties": map[string]interface{}{
					"privateIPAllocationMethod": "Dynamic",
					"subnet":                    ref(r.of(vnet, typeSubnet, values.GetString(vnet, "name"), gatewaySubnetName)),
					"publicIPAddress":           ref(r.of(values.GetMap(gw, "publicIpAddress"), typePublicIP, pipName)),
				},
			},
		},
	}
	if bgp := values.GetMap(gw, "bgpSettings"); bgp != nil {
		props["bgpSettings"] = values.CloneMap(bgp)
	}

	out := stamp(gw, name)
	out["tags"] = tags(gw)
	out["properties"] = props
	return out, pip
}

// ProcessVirtualNetworkGateway runs the virtual network gateway building block.
func ProcessVirtualNetworkGateway(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	merged, err := MergeVirtualNetworkGateway(in)
	if err != nil {
		return nil, err
	}
	if err := check(in.Settings, merged, virtualNetworkGatewayRules()); err != nil {
		return nil, err
	}

	r := &refs{}
	var gateways, pips []interface{}
	for _, gw := range merged {
		g, p := transformVirtualNetworkGateway(r, gw)
		gateways = append(gateways, g)
		pips = append(pips, p)
	}
	if r.err != nil {
		return nil, r.err
	}

	return &Result{
		ResourceGroups: resources.ExtractResourceGroups(gateways, pips),
		Parameters: map[string]interface{}{
			"virtualNetworkGateways": orEmpty(gateways),
			"publicIpAddresses":      orEmpty(pips),
		},
	}, nil
}
