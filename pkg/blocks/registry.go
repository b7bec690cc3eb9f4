package blocks

import (
	"fmt"
	"strings"
)

// ProcessFunc processes one building block.
type ProcessFunc func(in Input) (*Result, error)

// Entry describes a building block type.
type Entry struct {
	// Type is the building block type named in parameter files.
	Type string
	// Process runs the building block.
	Process ProcessFunc
	// DefaultsFilename is the optional user defaults file of the type.
	DefaultsFilename string
	// DeploymentName is appended to the deployment name.
	DeploymentName string
	// Template is the template path relative to the template base URI.
	Template string
}

var registry = []Entry{
	{
		Type:             "VirtualNetwork",
		Process:          ProcessVirtualNetwork,
		DefaultsFilename: "virtualNetworkSettings.json",
		DeploymentName:   "vnet",
		Template:         "buildingBlocks/virtualNetworks/virtualNetworks.json",
	},
	{
		Type:             "VirtualMachine",
		Process:          ProcessVirtualMachine,
		DefaultsFilename: "virtualMachineSettings.json",
		DeploymentName:   "vm",
		Template:         "buildingBlocks/virtualMachines/virtualMachines.json",
	},
	{
		Type:             "LoadBalancer",
		Process:          ProcessLoadBalancer,
		DefaultsFilename: "loadBalancerSettings.json",
		DeploymentName:   "lb",
		Template:         "buildingBlocks/loadBalancers/loadBalancers.json",
	},
	{
		Type:             "ApplicationGateway",
		Process:          ProcessApplicationGateway,
		DefaultsFilename: "applicationGatewaySettings.json",
		DeploymentName:   "gw",
		Template:         "buildingBlocks/applicationGateways/applicationGateways.json",
	},
	{
		Type:             "RouteTable",
		Process:          ProcessRouteTable,
		DefaultsFilename: "routeTableSettings.json",
		DeploymentName:   "rt",
		Template:         "buildingBlocks/routeTables/routeTables.json",
	},
	{
		Type:             "NetworkSecurityGroup",
		Process:          ProcessNetworkSecurityGroup,
		DefaultsFilename: "networkSecurityGroupSettings.json",
		DeploymentName:   "nsg",
		Template:         "buildingBlocks/networkSecurityGroups/networkSecurityGroups.json",
	},
	{
		Type:             "VirtualNetworkGateway",
		Process:          ProcessVirtualNetworkGateway,
		DefaultsFilename: "virtualNetworkGatewaySettings.json",
		DeploymentName:   "vgw",
		Template:         "buildingBlocks/virtualNetworkGateways/virtualNetworkGateways.json",
	},
	{
		Type:             "Connection",
		Process:          ProcessConnection,
		DefaultsFilename: "connectionSettings.json",
		DeploymentName:   "cn",
		Template:         "buildingBlocks/connections/connections.json",
	},
	{
		Type:             "CosmosDB",
		Process:          ProcessCosmosDB,
		DefaultsFilename: "cosmosDbSettings.json",
		DeploymentName:   "cdb",
		Template:         "buildingBlocks/cosmosDb/cosmosDb.json",
	},
	{
		Type:             "Template",
		Process:          ProcessTemplate,
		DefaultsFilename: "templateSettings.json",
		DeploymentName:   "tmpl",
	},
}

// Registry returns the building block types in dispatch order.
func Registry() []Entry {
	out := make([]Entry, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a building block type, ignoring case.
func Lookup(blockType string) (Entry, error) {
	for _, e := range registry {
		if strings.EqualFold(e.Type, blockType) {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrUnknownBlockType, blockType)
}

// Types lists the registered building block types.
func Types() []string {
	out := make([]string, len(registry))
	for i, e := range registry {
		out[i] = e.Type
	}
	return out
}
