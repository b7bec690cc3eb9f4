package blocks

import (
	"sort"
	"strings"
)

// securityRule is one constituent of a named security rule.
type securityRule struct {
	name     string
	protocol string
	ports    string
}

// namedSecurityRules expand a shorthand rule name into concrete rules.
var namedSecurityRules = map[string][]securityRule{
	"RDP":           {{name: "RDP", protocol: "Tcp", ports: "3389"}},
	"SSH":           {{name: "SSH", protocol: "Tcp", ports: "22"}},
	"HTTP":          {{name: "HTTP", protocol: "Tcp", ports: "80"}},
	"HTTPS":         {{name: "HTTPS", protocol: "Tcp", ports: "443"}},
	"MSSQL":         {{name: "MSSQL", protocol: "Tcp", ports: "1433"}},
	"MySQL":         {{name: "MySQL", protocol: "Tcp", ports: "3306"}},
	"PostgreSQL":    {{name: "PostgreSQL", protocol: "Tcp", ports: "5432"}},
	"MongoDB":       {{name: "MongoDB", protocol: "Tcp", ports: "27017"}},
	"Redis":         {{name: "Redis", protocol: "Tcp", ports: "6379"}},
	"ElasticSearch": {{name: "ElasticSearch", protocol: "Tcp", ports: "9200-9300"}},
	"DNS": {
		{name: "DNS-TCP", protocol: "Tcp", ports: "53"},
		{name: "DNS-UDP", protocol: "Udp", ports: "53"},
	},
	"WinRM": {
		{name: "WinRM-HTTP", protocol: "Tcp", ports: "5985"},
		{name: "WinRM-HTTPS", protocol: "Tcp", ports: "5986"},
	},
	"Cassandra": {
		{name: "Cassandra", protocol: "Tcp", ports: "9042"},
		{name: "Cassandra-JMX", protocol: "Tcp", ports: "7199"},
		{name: "Cassandra-Thrift", protocol: "Tcp", ports: "9160"},
	},
	"ActiveDirectory": {
		{name: "AD-RPC-Endpoint-Mapper", protocol: "Tcp", ports: "135"},
		{name: "AD-DNS-TCP", protocol: "Tcp", ports: "53"},
		{name: "AD-DNS-UDP", protocol: "Udp", ports: "53"},
		{name: "AD-Kerberos-TCP", protocol: "Tcp", ports: "88"},
		{name: "AD-Kerberos-UDP", protocol: "Udp", ports: "88"},
		{name: "AD-LDAP-TCP", protocol: "Tcp", ports: "389"},
		{name: "AD-LDAP-UDP", protocol: "Udp", ports: "389"},
		{name: "AD-LDAPS", protocol: "Tcp", ports: "636"},
		{name: "AD-LDAP-GC", protocol: "Tcp", ports: "3268-3269"},
		{name: "AD-SMB", protocol: "Tcp", ports: "445"},
		{name: "AD-Kerberos-Password-TCP", protocol: "Tcp", ports: "464"},
		{name: "AD-Kerberos-Password-UDP", protocol: "Udp", ports: "464"},
		{name: "AD-NetBIOS", protocol: "Udp", ports: "137-138"},
		{name: "AD-RPC-Dynamic", protocol: "Tcp", ports: "49152-65535"},
	},
}

// namedRuleOverrides are the fields a user may set on a named rule.
var namedRuleOverrides = []string{
	"sourceAddressPrefix",
	"destinationAddressPrefix",
	"sourcePortRange",
	"direction",
	"access",
}

// lookupNamedRule finds a named rule case-insensitively.
func lookupNamedRule(name string) ([]securityRule, bool) {
	for k, v := range namedSecurityRules {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// NamedSecurityRules lists the named rule shorthands.
func NamedSecurityRules() []string {
	out := make([]string, 0, len(namedSecurityRules))
	for k := range namedSecurityRules {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
