package blocks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

func testGatewaySettings() map[string]interface{} {
	return map[string]interface{}{
		"name":           "test-vgw",
		"virtualNetwork": map[string]interface{}{"name": testVNet},
	}
}

func TestProcessVirtualNetworkGateway(t *testing.T) {
	res, err := ProcessVirtualNetworkGateway(testInput(testGatewaySettings()))
	require.NoError(t, err)

	gws := stampsOf(t, res, "virtualNetworkGateways")
	require.Len(t, gws, 1)
	gw := gws[0]
	assert.Equal(t, "Vpn", values.GetString(gw, "properties.gatewayType"))
	assert.Equal(t, "RouteBased", values.GetString(gw, "properties.vpnType"))
	assert.Equal(t, "VpnGw1", values.GetString(gw, "properties.sku.name"))
	assert.Equal(t, "VpnGw1", values.GetString(gw, "properties.sku.tier"))
	assert.NotContains(t, values.GetMap(gw, "properties"), "bgpSettings")

	ipConfigs := values.Maps(values.Get(gw, "properties.ipConfigurations"))
	require.Len(t, ipConfigs, 1)
	assert.Equal(t, "test-vgw-ipconfig", ipConfigs[0]["name"])
	assert.Equal(t, testIDPrefix+typeVirtualNetwork+"/"+testVNet+"/subnets/GatewaySubnet",
		values.GetString(ipConfigs[0], "properties.subnet.id"))
	assert.Equal(t, testIDPrefix+typePublicIP+"/test-vgw-pip",
		values.GetString(ipConfigs[0], "properties.publicIPAddress.id"))

	pips := stampsOf(t, res, "publicIpAddresses")
	require.Len(t, pips, 1)
	assert.Equal(t, "test-vgw-pip", pips[0]["name"])
	assert.Equal(t, "Basic", values.GetString(pips[0], "sku.name"))
	assert.Equal(t, testResourceGroup, pips[0][resources.FieldResourceGroupName])
}

func TestProcessVirtualNetworkGatewayBgp(t *testing.T) {
	settings := testGatewaySettings()
	settings["enableBgp"] = true
	settings["bgpSettings"] = map[string]interface{}{"asn": 65010, "peerWeight": 0}

	res, err := ProcessVirtualNetworkGateway(testInput(settings))
	require.NoError(t, err)
	gw := stampsOf(t, res, "virtualNetworkGateways")[0]
	assert.True(t, values.GetBool(gw, "properties.enableBgp"))
	assert.Equal(t, 65010, values.GetInt(gw, "properties.bgpSettings.asn", 0))
}

func TestVirtualNetworkGatewayRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		want   string
	}{
		{"reserved asn", func(s map[string]interface{}) {
			s["enableBgp"] = true
			s["bgpSettings"] = map[string]interface{}{"asn": 65515}
		}, ".bgpSettings.asn"},
		{"bgp without settings", func(s map[string]interface{}) {
			s["enableBgp"] = true
		}, ".bgpSettings"},
		{"bgp settings without bgp", func(s map[string]interface{}) {
			s["bgpSettings"] = map[string]interface{}{"asn": 65010}
		}, ".bgpSettings"},
		{"bgp on basic", func(s map[string]interface{}) {
			s["sku"] = "Basic"
			s["enableBgp"] = true
			s["bgpSettings"] = map[string]interface{}{"asn": 65010}
		}, ".enableBgp"},
		{"policy based requires basic", func(s map[string]interface{}) {
			s["vpnType"] = "PolicyBased"
		}, ".vpnType"},
		{"express route sku", func(s map[string]interface{}) {
			s["gatewayType"] = "ExpressRoute"
		}, ".sku"},
		{"missing virtual network", func(s map[string]interface{}) {
			delete(s, "virtualNetwork")
		}, ".virtualNetwork"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testGatewaySettings()
			tt.mutate(settings)
			_, err := ProcessVirtualNetworkGateway(testInput(settings))
			assert.Contains(t, errorNames(t, err), tt.want)
		})
	}
}

func TestPolicyBasedBasicGateway(t *testing.T) {
	settings := testGatewaySettings()
	settings["vpnType"] = "PolicyBased"
	settings["sku"] = "Basic"
	_, err := ProcessVirtualNetworkGateway(testInput(settings))
	assert.NoError(t, err)
}

func testLocalGateway() map[string]interface{} {
	return map[string]interface{}{
		"name":            "onprem",
		"ipAddress":       "40.50.60.70",
		"addressPrefixes": []interface{}{"192.168.0.0/24"},
	}
}

func TestProcessConnectionIPsec(t *testing.T) {
	settings := []interface{}{
		map[string]interface{}{
			"name":                  "test-conn",
			"sharedKey":             "abc123",
			"virtualNetworkGateway": map[string]interface{}{"name": "test-vgw"},
			"localNetworkGateway":   testLocalGateway(),
		},
	}
	res, err := ProcessConnection(testInput(settings))
	require.NoError(t, err)

	conns := stampsOf(t, res, "connections")
	require.Len(t, conns, 1)
	c := conns[0]
	assert.Equal(t, connectionIPsec, values.GetString(c, "properties.connectionType"))
	assert.Equal(t, SecretPlaceholder, values.GetString(c, "properties.sharedKey"))
	assert.Equal(t, 10, values.GetInt(c, "properties.routingWeight", 0))
	assert.Equal(t, testIDPrefix+typeVirtualNetworkGateway+"/test-vgw",
		values.GetString(c, "properties.virtualNetworkGateway1.id"))
	assert.Equal(t, testIDPrefix+typeLocalNetworkGateway+"/onprem",
		values.GetString(c, "properties.localNetworkGateway2.id"))

	locals := stampsOf(t, res, "localNetworkGateways")
	require.Len(t, locals, 1)
	assert.Equal(t, "40.50.60.70", values.GetString(locals[0], "properties.gatewayIpAddress"))
	assert.Equal(t, []interface{}{"192.168.0.0/24"}, values.Get(locals[0], "properties.localNetworkAddressSpace.addressPrefixes"))

	var keys map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.Secrets["secret"]), &keys))
	assert.Equal(t, map[string]string{"test-conn": "abc123"}, keys)
}

func TestProcessConnectionVnet2Vnet(t *testing.T) {
	settings := map[string]interface{}{
		"name":                   "test-v2v",
		"connectionType":         connectionVnet2Vnet,
		"sharedKey":              "abc123",
		"virtualNetworkGateway1": map[string]interface{}{"name": "vgw1"},
		"virtualNetworkGateway2": map[string]interface{}{
			"name":                           "vgw2",
			resources.FieldSubscriptionID:    testOtherSubscriptionID,
			resources.FieldResourceGroupName: testOtherResourceGroup,
		},
	}
	res, err := ProcessConnection(testInput(settings))
	require.NoError(t, err)

	c := stampsOf(t, res, "connections")[0]
	assert.Equal(t, testIDPrefix+typeVirtualNetworkGateway+"/vgw1", values.GetString(c, "properties.virtualNetworkGateway1.id"))
	assert.Equal(t,
		"/subscriptions/"+testOtherSubscriptionID+"/resourceGroups/"+testOtherResourceGroup+"/providers/"+typeVirtualNetworkGateway+"/vgw2",
		values.GetString(c, "properties.virtualNetworkGateway2.id"))
	assert.Empty(t, stampsOf(t, res, "localNetworkGateways"))
}

func TestProcessConnectionExpressRoute(t *testing.T) {
	circuitID := testIDPrefix + typeExpressRouteCircuit + "/circuit"
	tests := []struct {
		name    string
		circuit map[string]interface{}
	}{
		{"by id", map[string]interface{}{"id": circuitID}},
		{"by name", map[string]interface{}{"name": "circuit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := map[string]interface{}{
				"name":                  "test-er",
				"connectionType":        connectionExpressRoute,
				"virtualNetworkGateway": map[string]interface{}{"name": "test-vgw"},
				"expressRouteCircuit":   tt.circuit,
			}
			res, err := ProcessConnection(testInput(settings))
			require.NoError(t, err)

			c := stampsOf(t, res, "connections")[0]
			assert.Equal(t, circuitID, values.GetString(c, "properties.peer.id"))
			assert.NotContains(t, values.GetMap(c, "properties"), "sharedKey")
			assert.Equal(t, "{}", res.Secrets["secret"])
		})
	}
}

func TestConnectionRules(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]interface{}
		want     string
	}{
		{"ipsec without shared key", map[string]interface{}{
			"name":                  "c",
			"virtualNetworkGateway": map[string]interface{}{"name": "vgw"},
			"localNetworkGateway":   testLocalGateway(),
		}, ".sharedKey"},
		{"ipsec without local gateway", map[string]interface{}{
			"name":                  "c",
			"sharedKey":             "k",
			"virtualNetworkGateway": map[string]interface{}{"name": "vgw"},
		}, ".localNetworkGateway"},
		{"vnet2vnet with local gateway", map[string]interface{}{
			"name":                   "c",
			"connectionType":         connectionVnet2Vnet,
			"sharedKey":              "k",
			"virtualNetworkGateway1": map[string]interface{}{"name": "a"},
			"virtualNetworkGateway2": map[string]interface{}{"name": "b"},
			"localNetworkGateway":    testLocalGateway(),
		}, ".localNetworkGateway"},
		{"express route with shared key", map[string]interface{}{
			"name":                  "c",
			"connectionType":        connectionExpressRoute,
			"sharedKey":             "k",
			"virtualNetworkGateway": map[string]interface{}{"name": "vgw"},
			"expressRouteCircuit":   map[string]interface{}{"name": "circuit"},
		}, ".sharedKey"},
		{"express route bad circuit id", map[string]interface{}{
			"name":                  "c",
			"connectionType":        connectionExpressRoute,
			"virtualNetworkGateway": map[string]interface{}{"name": "vgw"},
			"expressRouteCircuit":   map[string]interface{}{"id": "circuit"},
		}, ".expressRouteCircuit.id"},
		{"bad local gateway address", map[string]interface{}{
			"name":                  "c",
			"sharedKey":             "k",
			"virtualNetworkGateway": map[string]interface{}{"name": "vgw"},
			"localNetworkGateway": map[string]interface{}{
				"name":            "onprem",
				"ipAddress":       "nope",
				"addressPrefixes": []interface{}{"192.168.0.0/24"},
			},
		}, ".localNetworkGateway.ipAddress"},
		{"unknown type", map[string]interface{}{
			"name":           "c",
			"connectionType": "Tunnel",
		}, ".connectionType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ProcessConnection(testInput(tt.settings))
			assert.Contains(t, errorNames(t, err), tt.want)
		})
	}
}
