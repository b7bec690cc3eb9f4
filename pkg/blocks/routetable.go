package blocks

import (
	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const (
	typeRouteTable = "Microsoft.Network/routeTables"

	nextHopVirtualAppliance = "VirtualAppliance"
)

var (
	nextHopTypes         = []string{"VirtualNetworkGateway", "VnetLocal", "Internet", "HyperNetGateway", "None"}
	routeTableBoundaries = resources.Boundaries("virtualNetworks")
)

func routeTableDefaults() map[string]interface{} {
	return map[string]interface{}{
		"routes":                     []interface{}{},
		"virtualNetworks":            []interface{}{},
		"disableBgpRoutePropagation": false,
		"tags":                       map[string]interface{}{},
	}
}

// MergeRouteTable merges and places route table settings.
func MergeRouteTable(in Input) ([]map[string]interface{}, error) {
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		merged := merge.Object(item, nil, routeTableDefaults(), in.Defaults)
		out[i] = resources.SetupObject(merged, in.Context, routeTableBoundaries)
	}
	return out, nil
}

// nextHop accepts an appliance IP address or a named hop type.
func nextHop(value interface{}, _ map[string]interface{}) validation.Result {
	if validation.IPAddress(value) {
		return validation.OK()
	}
	s, _ := value.(string)
	return validation.Check(validation.Contains(nextHopTypes, s),
		"nextHop must be an IP address or one of "+validation.Join(nextHopTypes))
}

func routeTableRules() validation.Rules {
	return placementRules().With(
		validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		validation.Rule{Field: "routes", Check: nonEmptyEachOf(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
			{Field: "addressPrefix", Check: validation.IsValidCIDR},
			{Field: "nextHop", Check: nextHop},
		})},
		validation.Rule{Field: "routes", Check: uniqueNames},
		validation.Rule{Field: "virtualNetworks", Check: subnetAssociationRules()},
		validation.Rule{Field: "disableBgpRoutePropagation", Check: validation.IsBoolean},
		validation.Rule{Field: "tags", Check: validation.Tags},
	)
}

func transformRoute(route map[string]interface{}) map[string]interface{} {
	hop := values.GetString(route, "nextHop")
	props := map[string]interface{}{
		"addressPrefix": values.GetString(route, "addressPrefix"),
	}
	if validation.IPAddress(hop) {
		props["nextHopType"] = nextHopVirtualAppliance
		props["nextHopIpAddress"] = hop
	} else {
		props["nextHopType"] = hop
	}
	return map[string]interface{}{"name": values.GetString(route, "name"), "properties": props}
}

func transformRouteTable(r *refs, rt map[string]interface{}) (map[string]interface{}, []interface{}) {
	name := values.GetString(rt, "name")
	var routes []interface{}
	for _, route := range values.Maps(rt["routes"]) {
		routes = append(routes, transformRoute(route))
	}

	out := stamp(rt, name)
	out["tags"] = tags(rt)
	out["properties"] = map[string]interface{}{
		"disableBgpRoutePropagation": values.GetBool(rt, "disableBgpRoutePropagation"),
		"routes":                     orEmpty(routes),
	}
	return out, subnetAssociations(r, rt["virtualNetworks"], "routeTable", r.of(rt, typeRouteTable, name))
}

// ProcessRouteTable runs the route table building block.
func ProcessRouteTable(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	merged, err := MergeRouteTable(in)
	if err != nil {
		return nil, err
	}
	if err := check(in.Settings, merged, routeTableRules()); err != nil {
		return nil, err
	}

	r := &refs{}
	var tables, subnets []interface{}
	for _, rt := range merged {
		t, s := transformRouteTable(r, rt)
		tables = append(tables, t)
		subnets = append(subnets, s...)
	}
	if r.err != nil {
		return nil, r.err
	}

	return &Result{
		ResourceGroups: resources.ExtractResourceGroups(tables),
		Parameters: map[string]interface{}{
			"routeTables": orEmpty(tables),
			"subnets":     orEmpty(subnets),
		},
	}, nil
}
