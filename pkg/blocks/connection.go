package blocks

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const (
	typeExpressRouteCircuit = "Microsoft.Network/expressRouteCircuits"

	connectionIPsec        = "IPsec"
	connectionVnet2Vnet    = "Vnet2Vnet"
	connectionExpressRoute = "ExpressRoute"
)

var connectionBoundaries = resources.Boundaries(
	"virtualNetworkGateway",
	"virtualNetworkGateway1",
	"virtualNetworkGateway2",
	"localNetworkGateway",
	"expressRouteCircuit",
)

// connectionFields are the peers each connection type requires. Peers of
// other types are rejected.
var connectionFields = map[string][]string{
	connectionIPsec:        {"virtualNetworkGateway", "localNetworkGateway", "sharedKey"},
	connectionVnet2Vnet:    {"virtualNetworkGateway1", "virtualNetworkGateway2", "sharedKey"},
	connectionExpressRoute: {"virtualNetworkGateway", "expressRouteCircuit"},
}

func connectionDefaults() map[string]interface{} {
	return map[string]interface{}{
		"connectionType": connectionIPsec,
		"routingWeight":  10,
		"enableBgp":      false,
		"tags":           map[string]interface{}{},
	}
}

// MergeConnection merges and places connection settings.
func MergeConnection(in Input) ([]map[string]interface{}, error) {
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		merged := merge.Object(item, nil, connectionDefaults(), in.Defaults)
		out[i] = resources.SetupObject(merged, in.Context, connectionBoundaries)
	}
	return out, nil
}

// connectionPeer requires field for the connection types that use it and
// forbids it elsewhere.
func connectionPeer(field string, check validation.Func) validation.Func {
	return func(value interface{}, parent map[string]interface{}) validation.Result {
		typ := values.GetString(parent, "connectionType")
		fields, ok := connectionFields[typ]
		if !ok {
			return validation.OK()
		}
		if !validation.Contains(fields, field) {
			return validation.Check(value == nil, fmt.Sprintf("%s cannot be specified for %s connections", field, typ))
		}
		return check(value, parent)
	}
}

func namedPeer(what string) validation.Func {
	return required(placementRules().With(
		validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
	), what+" must be specified")
}

// circuitPeer accepts a circuit by name or by resource id.
func circuitPeer(value interface{}, parent map[string]interface{}) validation.Result {
	if c, ok := value.(map[string]interface{}); ok && values.Has(c, "id") {
		return validation.Recurse(validation.Rules{{Field: "id", Check: validation.IsResourceID}})
	}
	return namedPeer("expressRouteCircuit")(value, parent)
}

func connectionRules() validation.Rules {
	return placementRules().With(
		validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		validation.Rule{Field: "connectionType", Check: validation.IsOneOf(connectionIPsec, connectionVnet2Vnet, connectionExpressRoute)},
		validation.Rule{Field: "routingWeight", Check: validation.IsInRange(0, math.MaxInt32)},
		validation.Rule{Field: "enableBgp", Check: validation.IsBoolean},
		validation.Rule{Field: "sharedKey", Check: connectionPeer("sharedKey", validation.NotNullOrWhitespace)},
		validation.Rule{Field: "virtualNetworkGateway", Check: connectionPeer("virtualNetworkGateway", namedPeer("virtualNetworkGateway"))},
		validation.Rule{Field: "virtualNetworkGateway1", Check: connectionPeer("virtualNetworkGateway1", namedPeer("virtualNetworkGateway1"))},
		validation.Rule{Field: "virtualNetworkGateway2", Check: connectionPeer("virtualNetworkGateway2", namedPeer("virtualNetworkGateway2"))},
		validation.Rule{Field: "localNetworkGateway", Check: connectionPeer("localNetworkGateway",
			required(localNetworkGatewayRules(), "localNetworkGateway must be specified"))},
		validation.Rule{Field: "expressRouteCircuit", Check: connectionPeer("expressRouteCircuit", circuitPeer)},
		validation.Rule{Field: "tags", Check: validation.Tags},
	)
}

func gatewayRef(r *refs, gw map[string]interface{}) map[string]interface{} {
	return ref(r.of(gw, typeVirtualNetworkGateway, values.GetString(gw, "name")))
}

func transformConnection(r *refs, conn map[string]interface{}) (map[string]interface{}, map[string]interface{}) {
	typ := values.GetString(conn, "connectionType")
	props := map[string]interface{}{
		"connectionType": typ,
		"routingWeight":  values.GetInt(conn, "routingWeight", 10),
		"enableBgp":      values.GetBool(conn, "enableBgp"),
	}
	if values.GetString(conn, "sharedKey") != "" {
		props["sharedKey"] = SecretPlaceholder
	}

	var local map[string]interface{}
	switch typ {
	case connectionIPsec:
		lgw := values.GetMap(conn, "localNetworkGateway")
		local = transformLocalNetworkGateway(lgw)
		props["virtualNetworkGateway1"] = gatewayRef(r, values.GetMap(conn, "virtualNetworkGateway"))
		props["localNetworkGateway2"] = ref(r.of(lgw, typeLocalNetworkGateway, values.GetString(lgw, "name")))
	case connectionVnet2Vnet:
		props["virtualNetworkGateway1"] = gatewayRef(r, values.GetMap(conn, "virtualNetworkGateway1"))
		props["virtualNetworkGateway2"] = gatewayRef(r, values.GetMap(conn, "virtualNetworkGateway2"))
	case connectionExpressRoute:
		props["virtualNetworkGateway1"] = gatewayRef(r, values.GetMap(conn, "virtualNetworkGateway"))
		circuit := values.GetMap(conn, "expressRouteCircuit")
		if id := values.GetString(circuit, "id"); id != "" {
			props["peer"] = ref(id)
		} else {
			props["peer"] = ref(r.of(circuit, typeExpressRouteCircuit, values.GetString(circuit, "name")))
		}
	}

	out := stamp(conn, values.GetString(conn, "name"))
	out["tags"] = tags(conn)
	out["properties"] = props
	return out, local
}

// ProcessConnection runs the connection building block. Shared keys are
// returned as one "secret" parameter: a JSON object of keys by connection name.
func ProcessConnection(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	merged, err := MergeConnection(in)
	if err != nil {
		return nil, err
	}
	if err := check(in.Settings, merged, connectionRules()); err != nil {
		return nil, err
	}

	r := &refs{}
	keys := map[string]string{}
	var conns, locals []interface{}
	for _, conn := range merged {
		c, l := transformConnection(r, conn)
		conns = append(conns, c)
		if l != nil {
			locals = append(locals, l)
		}
		if key := values.GetString(conn, "sharedKey"); key != "" {
			keys[values.GetString(conn, "name")] = key
		}
	}
	if r.err != nil {
		return nil, r.err
	}

	secret, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransform, err)
	}

	return &Result{
		ResourceGroups: resources.ExtractResourceGroups(conns, locals),
		Parameters: map[string]interface{}{
			"connections":          orEmpty(conns),
			"localNetworkGateways": orEmpty(locals),
		},
		Secrets: map[string]string{"secret": string(secret)},
	}, nil
}
