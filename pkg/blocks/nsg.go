package blocks

import (
	"fmt"
	"regexp"

	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const typeNetworkSecurityGroup = "Microsoft.Network/networkSecurityGroups"

var (
	nsgBoundaries      = resources.Boundaries("virtualNetworks", "networkInterfaces")
	serviceTagPattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9.]*$`)
	securityProtocols  = []string{"Tcp", "Udp", "Icmp", "*"}
	securityDirections = []string{"Inbound", "Outbound"}
)

func securityRuleTemplate() map[string]interface{} {
	return map[string]interface{}{
		"protocol":                 "*",
		"sourcePortRange":          "*",
		"destinationPortRange":     "*",
		"sourceAddressPrefix":      "*",
		"destinationAddressPrefix": "*",
		"access":                   "Allow",
		"direction":                "Inbound",
	}
}

func networkSecurityGroupDefaults() map[string]interface{} {
	return map[string]interface{}{
		"securityRules":     []interface{}{},
		"virtualNetworks":   []interface{}{},
		"networkInterfaces": []interface{}{},
		"tags":              map[string]interface{}{},
	}
}

// expandSecurityRules replaces named rules by their constituents, numbered
// from the priority of the named rule. Other rules merge over the rule
// template.
func expandSecurityRules(rules []interface{}) []interface{} {
	out := make([]interface{}, 0, len(rules))
	for _, item := range rules {
		rule, ok := item.(map[string]interface{})
		if !ok {
			out = append(out, values.Clone(item))
			continue
		}
		constituents, named := lookupNamedRule(values.GetString(rule, "name"))
		if !named {
			out = append(out, merge.Merge(rule, nil, securityRuleTemplate()))
			continue
		}
		priority, hasPriority := values.Int(rule["priority"])
		for k, c := range constituents {
			expanded := securityRuleTemplate()
			expanded["name"] = c.name
			expanded["protocol"] = c.protocol
			expanded["destinationPortRange"] = c.ports
			copyFields(expanded, rule, namedRuleOverrides...)
			if hasPriority {
				expanded["priority"] = priority + k
			} else {
				expanded["priority"] = values.Clone(rule["priority"])
			}
			out = append(out, expanded)
		}
	}
	return out
}

func networkSecurityGroupPolicy() merge.Policy {
	return merge.Policy{
		"securityRules": merge.Custom(func(_, override interface{}, _ merge.Scope) interface{} {
			items, ok := override.([]interface{})
			if !ok {
				return values.Clone(override)
			}
			return expandSecurityRules(items)
		}),
	}
}

// MergeNetworkSecurityGroup merges and places network security group
// settings, expanding named rules.
func MergeNetworkSecurityGroup(in Input) ([]map[string]interface{}, error) {
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		merged := merge.Object(item, networkSecurityGroupPolicy(), networkSecurityGroupDefaults(), in.Defaults)
		out[i] = resources.SetupObject(merged, in.Context, nsgBoundaries)
	}
	return out, nil
}

// addressPrefix accepts *, an IP address, a CIDR or a service tag.
func addressPrefix(value interface{}, _ map[string]interface{}) validation.Result {
	s, _ := value.(string)
	ok := s == "*" || validation.IPAddress(s) || validation.CIDR(s) || serviceTagPattern.MatchString(s)
	return validation.Check(ok, "Value must be *, an IP address, a CIDR or a service tag")
}

// uniquePriorities rejects rules sharing a priority within one direction.
func uniquePriorities(value interface{}, _ map[string]interface{}) validation.Result {
	seen := map[string]bool{}
	for _, rule := range values.Maps(value) {
		p, ok := values.Int(rule["priority"])
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s/%d", values.GetString(rule, "direction"), p)
		if seen[key] {
			return validation.Fail("Duplicate %s priority %d", values.GetString(rule, "direction"), p)
		}
		seen[key] = true
	}
	return validation.OK()
}

func networkSecurityGroupRules() validation.Rules {
	return placementRules().With(
		validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		validation.Rule{Field: "securityRules", Check: eachOf(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
			{Field: "description", Check: validation.Optional(validation.IsString)},
			{Field: "protocol", Check: validation.IsOneOf(securityProtocols...)},
			{Field: "sourcePortRange", Check: validation.IsValidPortRange},
			{Field: "destinationPortRange", Check: validation.IsValidPortRange},
			{Field: "sourceAddressPrefix", Check: addressPrefix},
			{Field: "destinationAddressPrefix", Check: addressPrefix},
			{Field: "access", Check: validation.IsOneOf("Allow", "Deny")},
			{Field: "direction", Check: validation.IsOneOf(securityDirections...)},
			{Field: "priority", Check: validation.IsInRange(100, 4096)},
		})},
		validation.Rule{Field: "securityRules", Check: uniqueNames},
		validation.Rule{Field: "securityRules", Check: uniquePriorities},
		validation.Rule{Field: "virtualNetworks", Check: subnetAssociationRules()},
		validation.Rule{Field: "networkInterfaces", Check: eachOf(placementRules().With(
			validation.Rule{Field: "name", Check: validation.NotNullOrWhitespace},
		))},
		validation.Rule{Field: "tags", Check: validation.Tags},
	)
}

func transformNetworkSecurityGroup(r *refs, nsg map[string]interface{}) (map[string]interface{}, []interface{}, []interface{}) {
	name := values.GetString(nsg, "name")
	id := r.of(nsg, typeNetworkSecurityGroup, name)

	var rules []interface{}
	for _, rule := range values.Maps(nsg["securityRules"]) {
		props := map[string]interface{}{}
		for _, field := range []string{
			"protocol", "sourcePortRange", "destinationPortRange", "sourceAddressPrefix",
			"destinationAddressPrefix", "access", "direction",
		} {
			props[field] = values.GetString(rule, field)
		}
		props["priority"] = values.GetInt(rule, "priority", 0)
		if d := values.GetString(rule, "description"); d != "" {
			props["description"] = d
		}
		rules = append(rules, map[string]interface{}{"name": values.GetString(rule, "name"), "properties": props})
	}

	out := stamp(nsg, name)
	out["tags"] = tags(nsg)
	out["properties"] = map[string]interface{}{"securityRules": orEmpty(rules)}

	var nics []interface{}
	for _, nic := range values.Maps(nsg["networkInterfaces"]) {
		nicName := values.GetString(nic, "name")
		s := stamp(nic, nicName)
		s["id"] = r.of(nic, typeNetworkInterface, nicName)
		s["networkSecurityGroup"] = ref(id)
		nics = append(nics, s)
	}
	return out, subnetAssociations(r, nsg["virtualNetworks"], "networkSecurityGroup", id), nics
}

// ProcessNetworkSecurityGroup runs the network security group building block.
func ProcessNetworkSecurityGroup(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	merged, err := MergeNetworkSecurityGroup(in)
	if err != nil {
		return nil, err
	}
	if err := check(in.Settings, merged, networkSecurityGroupRules()); err != nil {
		return nil, err
	}

	r := &refs{}
	var groups, subnets, nics []interface{}
	for _, nsg := range merged {
		g, s, n := transformNetworkSecurityGroup(r, nsg)
		groups = append(groups, g)
		subnets = append(subnets, s...)
		nics = append(nics, n...)
	}
	if r.err != nil {
		return nil, r.err
	}

	return &Result{
		ResourceGroups: resources.ExtractResourceGroups(groups),
		Parameters: map[string]interface{}{
			"networkSecurityGroups": orEmpty(groups),
			"subnets":               orEmpty(subnets),
			"networkInterfaces":     orEmpty(nics),
		},
	}, nil
}
