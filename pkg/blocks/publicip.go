package blocks

import (
	"fmt"

	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

// Resource types.
const (
	typePublicIP = "Microsoft.Network/publicIPAddresses"
)

func publicIPDefaults() map[string]interface{} {
	return map[string]interface{}{
		"publicIPAllocationMethod": "Dynamic",
		"publicIPAddressVersion":   "IPv4",
		"sku":                      "Basic",
		"idleTimeoutInMinutes":     4,
		"tags":                     map[string]interface{}{},
	}
}

// publicIPRules validate a public IP address. Names are generated by the
// owning resource, so the name is not checked here.
func publicIPRules() validation.Rules {
	return validation.Rules{
		{Field: "publicIPAllocationMethod", Check: validation.IsOneOf("Static", "Dynamic")},
		{Field: "publicIPAddressVersion", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if r := validation.IsOneOf("IPv4", "IPv6")(value, parent); !r.Valid {
				return r
			}
			return validation.Check(value != "IPv6" || parent["publicIPAllocationMethod"] == "Dynamic",
				"IPv6 public IP addresses require Dynamic allocation")
		}},
		{Field: "sku", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if r := validation.IsOneOf("Basic", "Standard")(value, parent); !r.Valid {
				return r
			}
			return validation.Check(value != "Standard" || parent["publicIPAllocationMethod"] == "Static",
				"Standard public IP addresses require Static allocation")
		}},
		{Field: "idleTimeoutInMinutes", Check: validation.Optional(validation.IsInRange(4, 30))},
		{Field: "domainNameLabel", Check: validation.Optional(validation.IsString)},
		{Field: "reverseFqdn", Check: validation.Optional(validation.IsString)},
		{Field: "tags", Check: validation.Tags},
	}
}

// transformPublicIP builds a public IP stamp named name, placed like owner.
func transformPublicIP(pip map[string]interface{}, owner map[string]interface{}, name string) map[string]interface{} {
	out := stamp(owner, name)
	out["sku"] = map[string]interface{}{"name": values.GetString(pip, "sku")}
	out["tags"] = tags(pip)

	props := map[string]interface{}{
		"publicIPAllocationMethod": values.GetString(pip, "publicIPAllocationMethod"),
		"publicIPAddressVersion":   values.GetString(pip, "publicIPAddressVersion"),
	}
	if v, ok := values.Int(pip["idleTimeoutInMinutes"]); ok {
		props["idleTimeoutInMinutes"] = v
	}
	dns := map[string]interface{}{}
	if label := values.GetString(pip, "domainNameLabel"); label != "" {
		dns["domainNameLabel"] = label
	}
	if fqdn := values.GetString(pip, "reverseFqdn"); fqdn != "" {
		dns["reverseFqdn"] = fqdn
	}
	if len(dns) > 0 {
		props["dnsSettings"] = dns
	}
	out["properties"] = props
	return out
}

// publicIPName names the public IP of a resource.
func publicIPName(owner string) string {
	return fmt.Sprintf("%s-pip", owner)
}
