package blocks

import (
	"fmt"

	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const typeVirtualNetwork = "Microsoft.Network/virtualNetworks"

var virtualNetworkBoundaries = resources.Boundaries("remoteVirtualNetwork")

func virtualNetworkDefaults() map[string]interface{} {
	return map[string]interface{}{
		"addressPrefixes":        []interface{}{},
		"subnets":                []interface{}{},
		"dnsServers":             []interface{}{},
		"virtualNetworkPeerings": []interface{}{},
		"tags":                   map[string]interface{}{},
	}
}

func virtualNetworkPolicy() merge.Policy {
	return merge.Policy{
		"virtualNetworkPeerings": each(map[string]interface{}{
			"allowForwardedTraffic":     false,
			"allowGatewayTransit":       false,
			"useRemoteGateways":         false,
			"allowVirtualNetworkAccess": true,
		}, nil),
	}
}

// MergeVirtualNetwork merges and places virtual network settings.
func MergeVirtualNetwork(in Input) ([]map[string]interface{}, error) {
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		merged := merge.Object(item, virtualNetworkPolicy(), virtualNetworkDefaults(), in.Defaults)
		out[i] = resources.SetupObject(merged, in.Context, virtualNetworkBoundaries)
	}
	return out, nil
}

func peeringRules() validation.Rules {
	return validation.Rules{
		{Field: "name", Check: validation.Optional(validation.NotNullOrWhitespace)},
		{Field: "remoteVirtualNetwork", Check: required(placementRules().With(
			validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		), "remoteVirtualNetwork must be specified")},
		{Field: "allowForwardedTraffic", Check: validation.IsBoolean},
		{Field: "allowGatewayTransit", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if r := validation.IsBoolean(value, parent); !r.Valid {
				return r
			}
			return validation.Check(!(value == true && parent["useRemoteGateways"] == true),
				"allowGatewayTransit and useRemoteGateways cannot both be true")
		}},
		{Field: "useRemoteGateways", Check: validation.IsBoolean},
		{Field: "allowVirtualNetworkAccess", Check: validation.IsBoolean},
	}
}

func virtualNetworkRules() validation.Rules {
	return placementRules().With(
		validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		validation.Rule{Field: "addressPrefixes", Check: validation.NonEmptyEach(validation.IsValidCIDR)},
		validation.Rule{Field: "subnets", Check: eachOf(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
			{Field: "addressPrefix", Check: validation.IsValidCIDR},
		})},
		validation.Rule{Field: "subnets", Check: uniqueNames},
		validation.Rule{Field: "dnsServers", Check: validation.Optional(validation.EachIPAddress)},
		validation.Rule{Field: "virtualNetworkPeerings", Check: eachOf(peeringRules())},
		validation.Rule{Field: "tags", Check: validation.Tags},
	)
}

// peeringName is the default name of a peering to remote.
func peeringName(vnet, remote string) string {
	return fmt.Sprintf("%s-peer-%s", vnet, remote)
}

func transformVirtualNetwork(r *refs, vnet map[string]interface{}) (map[string]interface{}, []interface{}) {
	name := values.GetString(vnet, "name")

	var subnets []interface{}
	for _, s := range values.Maps(vnet["subnets"]) {
		subnets = append(subnets, map[string]interface{}{
			"name":       values.GetString(s, "name"),
			"properties": map[string]interface{}{"addressPrefix": values.GetString(s, "addressPrefix")},
		})
	}

	props := map[string]interface{}{
		"addressSpace": map[string]interface{}{"addressPrefixes": list(values.Clone(vnet["addressPrefixes"]))},
		"subnets":      orEmpty(subnets),
	}
	if dns := values.Strings(vnet["dnsServers"]); len(dns) > 0 {
		props["dhcpOptions"] = map[string]interface{}{"dnsServers": values.ToAny(dns)}
	}

	out := stamp(vnet, name)
	out["tags"] = tags(vnet)
	out["properties"] = props

	var peerings []interface{}
	for _, p := range values.Maps(vnet["virtualNetworkPeerings"]) {
		remote := values.GetMap(p, "remoteVirtualNetwork")
		remoteName := values.GetString(remote, "name")
		peerName := values.GetString(p, "name")
		if peerName == "" {
			peerName = peeringName(name, remoteName)
		}
		peering := stamp(vnet, fmt.Sprintf("%s/%s", name, peerName))
		peering["properties"] = map[string]interface{}{
			"remoteVirtualNetwork":      ref(r.of(remote, typeVirtualNetwork, remoteName)),
			"allowForwardedTraffic":     values.GetBool(p, "allowForwardedTraffic"),
			"allowGatewayTransit":       values.GetBool(p, "allowGatewayTransit"),
			"useRemoteGateways":         values.GetBool(p, "useRemoteGateways"),
			"allowVirtualNetworkAccess": values.GetBool(p, "allowVirtualNetworkAccess"),
		}
		peerings = append(peerings, peering)
	}
	return out, peerings
}

// ProcessVirtualNetwork runs the virtual network building block.
func ProcessVirtualNetwork(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	merged, err := MergeVirtualNetwork(in)
	if err != nil {
		return nil, err
	}
	if err := check(in.Settings, merged, virtualNetworkRules()); err != nil {
		return nil, err
	}

	r := &refs{}
	var vnets, peerings []interface{}
	for _, vnet := range merged {
		v, p := transformVirtualNetwork(r, vnet)
		vnets = append(vnets, v)
		peerings = append(peerings, p...)
	}
	if r.err != nil {
		return nil, r.err
	}

	return &Result{
		ResourceGroups: resources.ExtractResourceGroups(vnets),
		Parameters: map[string]interface{}{
			"virtualNetworks":        orEmpty(vnets),
			"virtualNetworkPeerings": orEmpty(peerings),
		},
	}, nil
}

// subnetAssociationRules validate a list of {name, subnets} virtual networks.
func subnetAssociationRules() validation.Func {
	return eachOf(placementRules().With(
		validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		validation.Rule{Field: "subnets", Check: validation.NonEmptyEach(validation.NotNullOrWhitespace)},
	))
}

// subnetAssociations emits one stamp per subnet of vnets, attaching the
// resource with id under key.
func subnetAssociations(r *refs, vnets interface{}, key, id string) []interface{} {
	var out []interface{}
	for _, vnet := range values.Maps(vnets) {
		vnetName := values.GetString(vnet, "name")
		for _, subnet := range values.Strings(vnet["subnets"]) {
			s := stamp(vnet, fmt.Sprintf("%s/%s", vnetName, subnet))
			s["id"] = r.of(vnet, typeSubnet, vnetName, subnet)
			s["virtualNetwork"] = vnetName
			s["subnet"] = subnet
			s[key] = ref(id)
			out = append(out, s)
		}
	}
	return out
}
