package blocks

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

func testVirtualNetworkSettings() map[string]interface{} {
	return map[string]interface{}{
		"name":            testVNet,
		"addressPrefixes": []interface{}{"10.0.0.0/16"},
		"subnets": []interface{}{
			map[string]interface{}{"name": "web", "addressPrefix": "10.0.1.0/24"},
			map[string]interface{}{"name": "biz", "addressPrefix": "10.0.2.0/24"},
		},
		"dnsServers": []interface{}{"10.0.0.4"},
	}
}

func TestProcessVirtualNetwork(t *testing.T) {
	res, err := ProcessVirtualNetwork(testInput(testVirtualNetworkSettings()))
	require.NoError(t, err)

	vnets := stampsOf(t, res, "virtualNetworks")
	require.Len(t, vnets, 1)
	assert.Equal(t, testVNet, vnets[0]["name"])
	assert.Equal(t, []interface{}{"10.0.0.0/16"}, values.Get(vnets[0], "properties.addressSpace.addressPrefixes"))
	assert.Equal(t, []interface{}{"10.0.0.4"}, values.Get(vnets[0], "properties.dhcpOptions.dnsServers"))
	assert.Len(t, values.Maps(values.Get(vnets[0], "properties.subnets")), 2)
	assert.Empty(t, stampsOf(t, res, "virtualNetworkPeerings"))
	assert.Len(t, res.ResourceGroups, 1)
}

func TestProcessVirtualNetworkPeering(t *testing.T) {
	settings := testVirtualNetworkSettings()
	settings["virtualNetworkPeerings"] = []interface{}{
		map[string]interface{}{
			"remoteVirtualNetwork": map[string]interface{}{
				"name":                         "hub-vnet",
				resources.FieldResourceGroupName: testOtherResourceGroup,
			},
			"allowForwardedTraffic": true,
		},
	}
	res, err := ProcessVirtualNetwork(testInput(settings))
	require.NoError(t, err)

	peerings := stampsOf(t, res, "virtualNetworkPeerings")
	require.Len(t, peerings, 1)
	p := peerings[0]
	assert.Equal(t, testVNet+"/"+testVNet+"-peer-hub-vnet", p["name"])
	assert.True(t, values.GetBool(p, "properties.allowForwardedTraffic"))
	assert.True(t, values.GetBool(p, "properties.allowVirtualNetworkAccess"))
	assert.Equal(t,
		"/subscriptions/"+testSubscriptionID+"/resourceGroups/"+testOtherResourceGroup+"/providers/"+typeVirtualNetwork+"/hub-vnet",
		values.GetString(p, "properties.remoteVirtualNetwork.id"))
}

func TestVirtualNetworkRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		want   string
	}{
		{"no address space", func(s map[string]interface{}) { s["addressPrefixes"] = []interface{}{} }, ".addressPrefixes"},
		{"bad subnet prefix", func(s map[string]interface{}) {
			s["subnets"] = []interface{}{map[string]interface{}{"name": "web", "addressPrefix": "10.0.1.0"}}
		}, ".subnets[0].addressPrefix"},
		{"duplicate subnets", func(s map[string]interface{}) {
			s["subnets"] = []interface{}{
				map[string]interface{}{"name": "web", "addressPrefix": "10.0.1.0/24"},
				map[string]interface{}{"name": "web", "addressPrefix": "10.0.2.0/24"},
			}
		}, ".subnets"},
		{"gateway transit and remote gateways", func(s map[string]interface{}) {
			s["virtualNetworkPeerings"] = []interface{}{map[string]interface{}{
				"remoteVirtualNetwork": map[string]interface{}{"name": "hub"},
				"allowGatewayTransit":  true,
				"useRemoteGateways":    true,
			}}
		}, ".virtualNetworkPeerings[0].allowGatewayTransit"},
		{"peering without remote", func(s map[string]interface{}) {
			s["virtualNetworkPeerings"] = []interface{}{map[string]interface{}{}}
		}, ".virtualNetworkPeerings[0].remoteVirtualNetwork"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testVirtualNetworkSettings()
			tt.mutate(settings)
			_, err := ProcessVirtualNetwork(testInput(settings))
			assert.Contains(t, errorNames(t, err), tt.want)
		})
	}
}

func TestProcessRouteTable(t *testing.T) {
	settings := map[string]interface{}{
		"name": "test-rt",
		"routes": []interface{}{
			map[string]interface{}{"name": "to-fw", "addressPrefix": "0.0.0.0/0", "nextHop": "10.0.0.4"},
			map[string]interface{}{"name": "local", "addressPrefix": "10.0.0.0/16", "nextHop": "VnetLocal"},
		},
		"virtualNetworks": []interface{}{
			map[string]interface{}{
				"name":                         testVNet,
				"subnets":                      []interface{}{"web", "biz"},
				resources.FieldResourceGroupName: testOtherResourceGroup,
			},
		},
	}
	res, err := ProcessRouteTable(testInput(settings))
	require.NoError(t, err)

	tables := stampsOf(t, res, "routeTables")
	require.Len(t, tables, 1)
	routes := values.Maps(values.Get(tables[0], "properties.routes"))
	require.Len(t, routes, 2)
	assert.Equal(t, nextHopVirtualAppliance, values.GetString(routes[0], "properties.nextHopType"))
	assert.Equal(t, "10.0.0.4", values.GetString(routes[0], "properties.nextHopIpAddress"))
	assert.Equal(t, "VnetLocal", values.GetString(routes[1], "properties.nextHopType"))
	assert.NotContains(t, values.GetMap(routes[1], "properties"), "nextHopIpAddress")

	subnets := stampsOf(t, res, "subnets")
	require.Len(t, subnets, 2)
	assert.Equal(t, testVNet+"/web", subnets[0]["name"])
	assert.Equal(t, testOtherResourceGroup, subnets[0][resources.FieldResourceGroupName])
	assert.Equal(t, testIDPrefix+typeRouteTable+"/test-rt", values.GetString(subnets[1], "routeTable.id"))

	require.Len(t, res.ResourceGroups, 1, "associations do not add resource groups")
	assert.Equal(t, testResourceGroup, res.ResourceGroups[0].ResourceGroupName)
}

func TestNextHop(t *testing.T) {
	for _, hop := range []string{"10.0.0.4", "VirtualNetworkGateway", "VnetLocal", "Internet", "HyperNetGateway", "None"} {
		assert.True(t, nextHop(hop, nil).Valid, hop)
	}
	for _, hop := range []interface{}{"VirtualAppliance", "vnetlocal", "", nil, 4} {
		assert.False(t, nextHop(hop, nil).Valid, "%v", hop)
	}
}

func TestRouteTableRequiresRoutes(t *testing.T) {
	_, err := ProcessRouteTable(testInput(map[string]interface{}{"name": "test-rt"}))
	assert.Contains(t, errorNames(t, err), ".routes")
}

func TestExpandSecurityRules(t *testing.T) {
	rules := expandSecurityRules([]interface{}{
		map[string]interface{}{"name": "dns", "priority": 200, "sourceAddressPrefix": "VirtualNetwork", "protocol": "Icmp"},
		map[string]interface{}{"name": "custom", "priority": 300, "destinationPortRange": "8080"},
	})
	require.Len(t, rules, 3)

	tcp := rules[0].(map[string]interface{})
	udp := rules[1].(map[string]interface{})
	assert.Equal(t, "DNS-TCP", tcp["name"])
	assert.Equal(t, 200, tcp["priority"])
	assert.Equal(t, "Tcp", tcp["protocol"], "protocol is not overridable on named rules")
	assert.Equal(t, "53", tcp["destinationPortRange"])
	assert.Equal(t, "VirtualNetwork", tcp["sourceAddressPrefix"])
	assert.Equal(t, "DNS-UDP", udp["name"])
	assert.Equal(t, 201, udp["priority"])

	custom := rules[2].(map[string]interface{})
	assert.Equal(t, "custom", custom["name"])
	assert.Equal(t, "8080", custom["destinationPortRange"])
	assert.Equal(t, "*", custom["sourcePortRange"])
	assert.Equal(t, "Inbound", custom["direction"])
}

func TestNamedSecurityRules(t *testing.T) {
	named := NamedSecurityRules()
	assert.Contains(t, named, "ActiveDirectory")
	assert.IsIncreasing(t, named)

	ad, ok := lookupNamedRule("activedirectory")
	require.True(t, ok)
	assert.Len(t, ad, 14)
}

func TestProcessNetworkSecurityGroup(t *testing.T) {
	settings := map[string]interface{}{
		"name": "test-nsg",
		"securityRules": []interface{}{
			map[string]interface{}{"name": "RDP", "priority": 100},
			map[string]interface{}{"name": "deny-all", "priority": 4096, "access": "Deny"},
			map[string]interface{}{"name": "out", "priority": 100, "direction": "Outbound", "destinationAddressPrefix": "Internet"},
		},
		"virtualNetworks": []interface{}{
			map[string]interface{}{"name": testVNet, "subnets": []interface{}{"web"}},
		},
		"networkInterfaces": []interface{}{
			map[string]interface{}{"name": "test-vm1-nic1"},
		},
	}
	res, err := ProcessNetworkSecurityGroup(testInput(settings))
	require.NoError(t, err)

	groups := stampsOf(t, res, "networkSecurityGroups")
	require.Len(t, groups, 1)
	rules := values.Maps(values.Get(groups[0], "properties.securityRules"))
	require.Len(t, rules, 3)
	assert.Equal(t, "3389", values.GetString(rules[0], "properties.destinationPortRange"))
	assert.Equal(t, "Deny", values.GetString(rules[1], "properties.access"))
	assert.Equal(t, 4096, values.GetInt(rules[1], "properties.priority", 0))

	nsgID := testIDPrefix + typeNetworkSecurityGroup + "/test-nsg"
	subnets := stampsOf(t, res, "subnets")
	require.Len(t, subnets, 1)
	assert.Equal(t, nsgID, values.GetString(subnets[0], "networkSecurityGroup.id"))
	assert.Equal(t, testIDPrefix+typeVirtualNetwork+"/"+testVNet+"/subnets/web", subnets[0]["id"])

	nics := stampsOf(t, res, "networkInterfaces")
	require.Len(t, nics, 1)
	assert.Equal(t, testIDPrefix+typeNetworkInterface+"/test-vm1-nic1", nics[0]["id"])
	assert.Equal(t, nsgID, values.GetString(nics[0], "networkSecurityGroup.id"))
}

func TestNetworkSecurityGroupRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []interface{}
		want  string
	}{
		{"duplicate priority", []interface{}{
			map[string]interface{}{"name": "a", "priority": 100},
			map[string]interface{}{"name": "b", "priority": 100},
		}, ".securityRules"},
		{"expanded priority collision", []interface{}{
			map[string]interface{}{"name": "WinRM", "priority": 100},
			map[string]interface{}{"name": "b", "priority": 101},
		}, ".securityRules"},
		{"priority out of range", []interface{}{
			map[string]interface{}{"name": "a", "priority": 99},
		}, ".securityRules[0].priority"},
		{"bad port range", []interface{}{
			map[string]interface{}{"name": "a", "priority": 100, "destinationPortRange": "70000"},
		}, ".securityRules[0].destinationPortRange"},
		{"bad address prefix", []interface{}{
			map[string]interface{}{"name": "a", "priority": 100, "sourceAddressPrefix": "10.0.0.0/99"},
		}, ".securityRules[0].sourceAddressPrefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := map[string]interface{}{"name": "test-nsg", "securityRules": tt.rules}
			_, err := ProcessNetworkSecurityGroup(testInput(settings))
			assert.Contains(t, errorNames(t, err), tt.want)
		})
	}
}

func testLoadBalancerSettings() map[string]interface{} {
	return map[string]interface{}{
		"name":         "test-lb",
		"backendPools": []interface{}{map[string]interface{}{"name": "pool"}},
		"probes":       []interface{}{map[string]interface{}{"name": "probe", "port": 80}},
		"loadBalancingRules": []interface{}{map[string]interface{}{
			"name":                        "http",
			"frontendIPConfigurationName": defaultFrontendName,
			"backendPoolName":             "pool",
			"probeName":                   "probe",
			"frontendPort":                80,
			"backendPort":                 80,
		}},
		"inboundNatRules": []interface{}{map[string]interface{}{
			"name":                        "ssh",
			"frontendIPConfigurationName": defaultFrontendName,
			"startingFrontendPort":        50000,
			"backendPort":                 22,
		}},
	}
}

func TestProcessLoadBalancer(t *testing.T) {
	res, err := ProcessLoadBalancer(testInput(testLoadBalancerSettings()))
	require.NoError(t, err)

	lbs := stampsOf(t, res, "loadBalancers")
	require.Len(t, lbs, 1)
	lb := lbs[0]
	assert.Equal(t, "Basic", values.GetString(lb, "sku.name"))

	rules := values.Maps(values.Get(lb, "properties.loadBalancingRules"))
	require.Len(t, rules, 1)
	lbID := testIDPrefix + typeLoadBalancer + "/test-lb"
	assert.Equal(t, lbID+"/frontendIPConfigurations/"+defaultFrontendName,
		values.GetString(rules[0], "properties.frontendIPConfiguration.id"))
	assert.Equal(t, lbID+"/probes/probe", values.GetString(rules[0], "properties.probe.id"))
	assert.Equal(t, "Tcp", values.GetString(rules[0], "properties.protocol"))

	nats := values.Maps(values.Get(lb, "properties.inboundNatRules"))
	require.Len(t, nats, 1, "standalone load balancers do not expand NAT rules")
	assert.Equal(t, "ssh", nats[0]["name"])

	pips := stampsOf(t, res, "publicIpAddresses")
	require.Len(t, pips, 1)
	assert.Equal(t, "Dynamic", values.GetString(pips[0], "properties.publicIPAllocationMethod"))
}

func TestTransformLoadBalancerExpandsNATRules(t *testing.T) {
	merged, err := MergeLoadBalancer(testInput(testLoadBalancerSettings()))
	require.NoError(t, err)

	r := &refs{}
	lb, _ := transformLoadBalancer(r, merged[0], 3)
	require.NoError(t, r.err)

	nats := values.Maps(values.Get(lb, "properties.inboundNatRules"))
	require.Len(t, nats, 3)
	for i, nat := range nats {
		assert.Equal(t, fmt.Sprintf("ssh-%d", i), nat["name"])
		assert.Equal(t, 50000+i, values.GetInt(nat, "properties.frontendPort", 0))
	}
}

func TestProcessLoadBalancerStandardSku(t *testing.T) {
	settings := testLoadBalancerSettings()
	settings["sku"] = "Standard"
	res, err := ProcessLoadBalancer(testInput(settings))
	require.NoError(t, err)
	pip := stampsOf(t, res, "publicIpAddresses")[0]
	assert.Equal(t, "Standard", values.GetString(pip, "sku.name"))
	assert.Equal(t, "Static", values.GetString(pip, "properties.publicIPAllocationMethod"))
}

func TestLoadBalancerRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		want   string
	}{
		{"unknown frontend", func(s map[string]interface{}) {
			values.Maps(s["loadBalancingRules"])[0]["frontendIPConfigurationName"] = "missing"
		}, ".loadBalancingRules[0].frontendIPConfigurationName"},
		{"unknown probe", func(s map[string]interface{}) {
			values.Maps(s["loadBalancingRules"])[0]["probeName"] = "missing"
		}, ".loadBalancingRules[0].probeName"},
		{"http probe without path", func(s map[string]interface{}) {
			s["probes"] = []interface{}{map[string]interface{}{"name": "probe", "port": 80, "protocol": "Http"}}
		}, ".probes[0].requestPath"},
		{"internal without virtual network", func(s map[string]interface{}) {
			s["frontendIPConfigurations"] = []interface{}{map[string]interface{}{
				"name":             defaultFrontendName,
				"loadBalancerType": "Internal",
				"internalLoadBalancerSettings": map[string]interface{}{
					"subnetName": "web",
				},
			}}
		}, ".virtualNetwork"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testLoadBalancerSettings()
			tt.mutate(settings)
			_, err := ProcessLoadBalancer(testInput(settings))
			assert.Contains(t, errorNames(t, err), tt.want)
		})
	}
}

func testApplicationGatewaySettings() map[string]interface{} {
	return map[string]interface{}{
		"name":                    "test-gw",
		"virtualNetwork":          map[string]interface{}{"name": testVNet},
		"gatewayIPConfigurations": []interface{}{map[string]interface{}{"name": "gwip", "subnetName": "gw"}},
		"frontendPorts":           []interface{}{map[string]interface{}{"name": "http", "port": 80}},
		"backendAddressPools": []interface{}{map[string]interface{}{
			"name":             "pool",
			"backendAddresses": []interface{}{map[string]interface{}{"ipAddress": "10.0.1.4"}},
		}},
		"backendHttpSettingsCollection": []interface{}{map[string]interface{}{"name": "settings"}},
		"httpListeners": []interface{}{map[string]interface{}{
			"name":                        "listener",
			"frontendIPConfigurationName": defaultFrontendName,
			"frontendPortName":            "http",
		}},
		"requestRoutingRules": []interface{}{map[string]interface{}{
			"name":                    "rule",
			"httpListenerName":        "listener",
			"backendAddressPoolName":  "pool",
			"backendHttpSettingsName": "settings",
		}},
	}
}

func TestProcessApplicationGateway(t *testing.T) {
	res, err := ProcessApplicationGateway(testInput(testApplicationGatewaySettings()))
	require.NoError(t, err)

	gws := stampsOf(t, res, "applicationGateways")
	require.Len(t, gws, 1)
	gw := gws[0]
	assert.Equal(t, "Standard_Medium", values.GetString(gw, "properties.sku.name"))
	assert.Equal(t, 2, values.GetInt(gw, "properties.sku.capacity", 0))
	assert.NotContains(t, values.GetMap(gw, "properties"), "webApplicationFirewallConfiguration")

	gwID := testIDPrefix + "Microsoft.Network/applicationGateways/test-gw"
	listener := values.Maps(values.Get(gw, "properties.httpListeners"))[0]
	assert.Equal(t, gwID+"/frontendIPConfigurations/"+defaultFrontendName,
		values.GetString(listener, "properties.frontendIPConfiguration.id"))
	assert.Equal(t, gwID+"/frontendPorts/http", values.GetString(listener, "properties.frontendPort.id"))

	settings := values.Maps(values.Get(gw, "properties.backendHttpSettingsCollection"))[0]
	assert.Equal(t, 80, values.GetInt(settings, "properties.port", 0))
	assert.Equal(t, "Disabled", values.GetString(settings, "properties.cookieBasedAffinity"))

	gwIP := values.Maps(values.Get(gw, "properties.gatewayIPConfigurations"))[0]
	assert.Equal(t, testIDPrefix+typeVirtualNetwork+"/"+testVNet+"/subnets/gw",
		values.GetString(gwIP, "properties.subnet.id"))

	pips := stampsOf(t, res, "publicIpAddresses")
	require.Len(t, pips, 1)
	assert.Equal(t, "test-gw-default-feConfig-pip", pips[0]["name"])
}

func TestProcessApplicationGatewayV2(t *testing.T) {
	settings := testApplicationGatewaySettings()
	settings["sku"] = map[string]interface{}{"size": "WAF_v2", "tier": "WAF_v2", "capacity": 20}
	res, err := ProcessApplicationGateway(testInput(settings))
	require.NoError(t, err)

	gw := stampsOf(t, res, "applicationGateways")[0]
	assert.Equal(t, "Prevention", values.GetString(gw, "properties.webApplicationFirewallConfiguration.firewallMode"))
	pip := stampsOf(t, res, "publicIpAddresses")[0]
	assert.Equal(t, "Standard", values.GetString(pip, "sku.name"))
	assert.Equal(t, "Static", values.GetString(pip, "properties.publicIPAllocationMethod"))
}

func TestApplicationGatewayRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		want   string
	}{
		{"unknown frontend port", func(s map[string]interface{}) {
			values.Maps(s["httpListeners"])[0]["frontendPortName"] = "missing"
		}, ".httpListeners[0].frontendPortName"},
		{"unknown backend pool", func(s map[string]interface{}) {
			values.Maps(s["requestRoutingRules"])[0]["backendAddressPoolName"] = "missing"
		}, ".requestRoutingRules[0].backendAddressPoolName"},
		{"v2 size mismatch", func(s map[string]interface{}) {
			s["sku"] = map[string]interface{}{"size": "Standard_Medium", "tier": "Standard_v2"}
		}, ".sku.tier"},
		{"capacity out of range", func(s map[string]interface{}) {
			s["sku"] = map[string]interface{}{"capacity": 11}
		}, ".sku.capacity"},
		{"https listener without certificate", func(s map[string]interface{}) {
			values.Maps(s["httpListeners"])[0]["protocol"] = "Https"
		}, ".httpListeners[0].sslCertificateName"},
		{"two public frontends", func(s map[string]interface{}) {
			s["frontendIPConfigurations"] = []interface{}{
				map[string]interface{}{"name": "a"},
				map[string]interface{}{"name": "b"},
			}
		}, ".frontendIPConfigurations"},
		{"internal frontend without settings", func(s map[string]interface{}) {
			s["frontendIPConfigurations"] = []interface{}{
				map[string]interface{}{"name": defaultFrontendName, "applicationGatewayType": "Internal"},
			}
		}, ".frontendIPConfigurations[0].internalApplicationGatewaySettings"},
		{"missing virtual network", func(s map[string]interface{}) {
			delete(s, "virtualNetwork")
		}, ".virtualNetwork"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testApplicationGatewaySettings()
			tt.mutate(settings)
			_, err := ProcessApplicationGateway(testInput(settings))
			assert.Contains(t, errorNames(t, err), tt.want)
		})
	}
}
