package blocks

import (
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const typeLocalNetworkGateway = "Microsoft.Network/localNetworkGateways"

func localNetworkGatewayRules() validation.Rules {
	return placementRules().With(
		validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		validation.Rule{Field: "ipAddress", Check: validation.IsValidIPAddress},
		validation.Rule{Field: "addressPrefixes", Check: validation.NonEmptyEach(validation.IsValidCIDR)},
		validation.Rule{Field: "bgpSettings", Check: validation.Optional(validation.Nested(validation.Rules{
			{Field: "asn", Check: bgpASN},
			{Field: "bgpPeeringAddress", Check: validation.IsValidIPAddress},
			{Field: "peerWeight", Check: validation.Optional(validation.IsInRange(0, 100))},
		}))},
		validation.Rule{Field: "tags", Check: validation.Tags},
	)
}

func transformLocalNetworkGateway(lgw map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{
		"gatewayIpAddress": values.GetString(lgw, "ipAddress"),
		"localNetworkAddressSpace": map[string]interface{}{
			"addressPrefixes": list(values.Clone(lgw["addressPrefixes"])),
		},
	}
	if bgp := values.GetMap(lgw, "bgpSettings"); bgp != nil {
		props["bgpSettings"] = values.CloneMap(bgp)
	}
	out := stamp(lgw, values.GetString(lgw, "name"))
	out["tags"] = tags(lgw)
	out["properties"] = props
	return out
}
