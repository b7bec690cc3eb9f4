package blocks

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const (
	typeNetworkInterface = "Microsoft.Network/networkInterfaces"
	typeSubnet           = "Microsoft.Network/virtualNetworks/subnets"
	typeLBBackendPool    = "Microsoft.Network/loadBalancers/backendAddressPools"
	typeLBNatRule        = "Microsoft.Network/loadBalancers/inboundNatRules"
	typeLBNatPool        = "Microsoft.Network/loadBalancers/inboundNatPools"
	typeAppGWBackendPool = "Microsoft.Network/applicationGateways/backendAddressPools"
)

func nicDefaults() map[string]interface{} {
	return map[string]interface{}{
		"isPublic":                           true,
		"isPrimary":                          false,
		"subnetName":                         "default",
		"privateIPAllocationMethod":          "Dynamic",
		"privateIPAddressVersion":            "IPv4",
		"publicIPAllocationMethod":           "Dynamic",
		"publicIPAddressVersion":             "IPv4",
		"startingIPAddress":                  "",
		"enableIPForwarding":                 false,
		"enableAcceleratedNetworking":        false,
		"domainNameLabelPrefix":              "",
		"dnsServers":                         []interface{}{},
		"backendPoolNames":                   []interface{}{},
		"inboundNatRulesNames":               []interface{}{},
		"applicationGatewayBackendPoolNames": []interface{}{},
		"tags":                               map[string]interface{}{},
	}
}

// mergeNICs merges every NIC over the NIC defaults. When no NIC is marked
// primary and the first one does not decide, the first NIC becomes primary.
func mergeNICs(nics []interface{}) []interface{} {
	items := values.Clone(nics).([]interface{})
	primary := false
	for _, n := range values.Maps(items) {
		if values.GetBool(n, "isPrimary") {
			primary = true
		}
	}
	if !primary && len(items) > 0 {
		if first, ok := items[0].(map[string]interface{}); ok && !values.Has(first, "isPrimary") {
			first["isPrimary"] = true
		}
	}
	merged, _ := merge.Merge(items, nil, nicDefaults()).([]interface{})
	return merged
}

// nicRules validates the NICs of vmCount virtual machines.
func nicRules(vmCount int) validation.Rules {
	return validation.Rules{
		{Field: "isPublic", Check: validation.IsBoolean},
		{Field: "isPrimary", Check: validation.IsBoolean},
		{Field: "subnetName", Check: validation.NotNullOrWhitespace},
		{Field: "privateIPAllocationMethod", Check: validation.IsOneOf("Static", "Dynamic")},
		{Field: "privateIPAddressVersion", Check: validation.Optional(validation.IsOneOf("IPv4", "IPv6"))},
		{Field: "startingIPAddress", Check: startingIPAddress(vmCount)},
		{Field: "publicIPAllocationMethod", Check: validation.IsOneOf("Static", "Dynamic")},
		{Field: "publicIPAddressVersion", Check: validation.IsOneOf("IPv4", "IPv6")},
		{Field: "enableIPForwarding", Check: validation.IsBoolean},
		{Field: "enableAcceleratedNetworking", Check: validation.IsBoolean},
		{Field: "domainNameLabelPrefix", Check: validation.Optional(validation.IsString)},
		{Field: "dnsServers", Check: validation.Optional(validation.EachIPAddress)},
		{Field: "backendPoolNames", Check: validation.Optional(validation.Each(validation.NotNullOrWhitespace))},
		{Field: "inboundNatRulesNames", Check: validation.Optional(validation.Each(validation.NotNullOrWhitespace))},
		{Field: "applicationGatewayBackendPoolNames", Check: validation.Optional(validation.Each(validation.NotNullOrWhitespace))},
		{Field: "tags", Check: validation.Tags},
	}
}

// primaryNICs fails unless exactly one NIC is primary.
func primaryNICs(value interface{}, _ map[string]interface{}) validation.Result {
	n := 0
	for _, nic := range values.Maps(value) {
		if values.GetBool(nic, "isPrimary") {
			n++
		}
	}
	return validation.Check(n == 1, "Virtual machine must have exactly one primary NIC")
}

// nicTargets is what NIC IP configurations reference.
type nicTargets struct {
	virtualNetwork map[string]interface{}
	loadBalancer   map[string]interface{}
	appGateway     map[string]interface{}
	scaleSet       bool
}

func (t nicTargets) ipConfiguration(r *refs, nic map[string]interface{}, vmIndex int) map[string]interface{} {
	props := map[string]interface{}{
		"privateIPAllocationMethod": values.GetString(nic, "privateIPAllocationMethod"),
		"subnet": ref(r.of(t.virtualNetwork, typeSubnet,
			values.GetString(t.virtualNetwork, "name"), values.GetString(nic, "subnetName"))),
	}
	if v := values.GetString(nic, "privateIPAddressVersion"); v != "" {
		props["privateIPAddressVersion"] = v
	}
	if !t.scaleSet && values.GetString(nic, "privateIPAllocationMethod") == "Static" {
		props["privateIPAddress"] = nextIP(values.GetString(nic, "startingIPAddress"), vmIndex)
	}

	if lb := t.loadBalancer; lb != nil {
		lbName := values.GetString(lb, "name")
		var pools, nats []interface{}
		for _, p := range values.Strings(nic["backendPoolNames"]) {
			pools = append(pools, ref(r.of(lb, typeLBBackendPool, lbName, p)))
		}
		for _, n := range values.Strings(nic["inboundNatRulesNames"]) {
			if t.scaleSet {
				nats = append(nats, ref(r.of(lb, typeLBNatPool, lbName, n)))
			} else {
				nats = append(nats, ref(r.of(lb, typeLBNatRule, lbName, fmt.Sprintf("%s-%d", n, vmIndex))))
			}
		}
		if len(pools) > 0 {
			props["loadBalancerBackendAddressPools"] = pools
		}
		if len(nats) > 0 {
			if t.scaleSet {
				props["loadBalancerInboundNatPools"] = nats
			} else {
				props["loadBalancerInboundNatRules"] = nats
			}
		}
	}

	if gw := t.appGateway; gw != nil {
		var pools []interface{}
		for _, p := range values.Strings(nic["applicationGatewayBackendPoolNames"]) {
			pools = append(pools, ref(r.of(gw, typeAppGWBackendPool, values.GetString(gw, "name"), p)))
		}
		if len(pools) > 0 {
			props["applicationGatewayBackendAddressPools"] = pools
		}
	}
	return props
}

// transformNIC builds NIC j of VM i together with its public IP, if any.
func transformNIC(r *refs, nic map[string]interface{}, t nicTargets, vmName string, vmIndex, nicIndex int) (map[string]interface{}, map[string]interface{}) {
	name := fmt.Sprintf("%s-nic%d", vmName, nicIndex+1)
	ipConfig := t.ipConfiguration(r, nic, vmIndex)

	var pip map[string]interface{}
	if values.GetBool(nic, "isPublic") {
		pipName := publicIPName(name)
		settings := map[string]interface{}{
			"publicIPAllocationMethod": values.GetString(nic, "publicIPAllocationMethod"),
			"publicIPAddressVersion":   values.GetString(nic, "publicIPAddressVersion"),
			"sku":                      "Basic",
			"tags":                     tags(nic),
		}
		if prefix := values.GetString(nic, "domainNameLabelPrefix"); prefix != "" {
			settings["domainNameLabel"] = fmt.Sprintf("%s%d", prefix, vmIndex+1)
		}
		pip = transformPublicIP(settings, nic, pipName)
		ipConfig["publicIPAddress"] = ref(r.of(nic, typePublicIP, pipName))
	}

	out := stamp(nic, name)
	out["tags"] = tags(nic)
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
	out["properties"] = props
	return out, pip
}

// nicID is the resource ID of NIC j of a VM placed like nic.
func nicID(r *refs, nic map[string]interface{}, vmName string, nicIndex int) string {
	return r.of(nic, typeNetworkInterface, fmt.Sprintf("%s-nic%d", vmName, nicIndex+1))
}

// startingIPAddress requires a static start address that leaves room for
// vmCount consecutive IPv4 addresses.
func startingIPAddress(vmCount int) validation.Func {
	return func(value interface{}, parent map[string]interface{}) validation.Result {
		if parent["privateIPAllocationMethod"] != "Static" {
			return validation.OK()
		}
		if !validation.IPAddress(value) {
			return validation.Fail("If privateIPAllocationMethod is Static, startingIPAddress must be a valid IP address")
		}
		s, _ := value.(string)
		ip := net.ParseIP(s).To4()
		if ip == nil || parent["privateIPAddressVersion"] == "IPv6" {
			return validation.Fail("Static private IP allocation supports IPv4 addresses only")
		}
		last := uint64(binary.BigEndian.Uint32(ip)) + uint64(max(vmCount, 1)-1)
		return validation.Check(last <= math.MaxUint32,
			fmt.Sprintf("startingIPAddress leaves no room for %d addresses", vmCount))
	}
}

// nextIP adds offset to an IPv4 address as a 32-bit integer, carrying across octets.
func nextIP(start string, offset int) string {
	ip := net.ParseIP(start).To4()
	if ip == nil {
		return start
	}
	n := binary.BigEndian.Uint32(ip) + uint32(offset)
	out := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(out, n)
	return out.String()
}
