package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test constants to avoid literal duplication.
const (
	testSubnet = "web"
	testIP     = "10.0.1.4"
)

func nicRules() Rules {
	return Rules{
		{Field: "isPublic", Check: IsBoolean},
		{Field: "subnetName", Check: NotNullOrWhitespace},
		{Field: "dnsServers", Check: Optional(EachIPAddress)},
	}
}

func vmRules() Rules {
	return Rules{
		{Field: "namePrefix", Check: NotNullOrWhitespace},
		{Field: "nics", Check: Nested(nicRules())},
	}
}

func TestValidateIndexQualifiedPath(t *testing.T) {
	settings := map[string]interface{}{
		"namePrefix": "test",
		"nics": []interface{}{
			map[string]interface{}{"isPublic": "yes", "subnetName": testSubnet},
		},
	}

	errs := Validate(settings, vmRules())

	require.Len(t, errs, 1)
	assert.Equal(t, ".nics[0].isPublic", errs[0].Name)
	assert.Equal(t, MsgBoolean, errs[0].Message)
}

func TestValidateRootArray(t *testing.T) {
	settings := []interface{}{
		map[string]interface{}{"isPublic": true, "subnetName": testSubnet},
		map[string]interface{}{"isPublic": false},
	}

	errs := Validate(settings, nicRules())

	assert.Equal(t, []string{"[1].subnetName"}, errs.Names())
}

func TestValidateScalarArray(t *testing.T) {
	settings := map[string]interface{}{
		"isPublic":   true,
		"subnetName": testSubnet,
		"dnsServers": []interface{}{testIP, "not-an-ip", "10.0.0.300"},
	}

	errs := Validate(settings, nicRules())

	assert.Equal(t, []string{".dnsServers[1]", ".dnsServers[2]"}, errs.Names())
}

func TestValidateDoesNotShortCircuitSiblings(t *testing.T) {
	errs := Validate(map[string]interface{}{"isPublic": 1}, nicRules())

	assert.Equal(t, []string{".isPublic", ".subnetName"}, errs.Names())
}

func TestValidateNestedSkippedWhenAbsent(t *testing.T) {
	errs := Validate(map[string]interface{}{"namePrefix": "test"}, vmRules())
	assert.Empty(t, errs)
}

func TestValidateNonObject(t *testing.T) {
	errs := Validate("scalar", nicRules())
	require.Len(t, errs, 1)
	assert.Equal(t, "", errs[0].Name)
}

func TestValidateParentCrossField(t *testing.T) {
	rules := Rules{
		{Field: "protocol", Check: IsOneOf("Http", "Tcp")},
		{Field: "requestPath", Check: func(value interface{}, parent map[string]interface{}) Result {
			if parent["protocol"] == "Http" {
				return Check(!IsNullOrWhitespace(value), "requestPath is required for Http")
			}
			return Check(value == nil, "requestPath is only allowed for Http")
		}},
	}

	assert.Empty(t, Validate(map[string]interface{}{"protocol": "Tcp"}, rules))
	assert.Equal(t, []string{".requestPath"},
		Validate(map[string]interface{}{"protocol": "Http"}, rules).Names())
}

func TestErrorsIsJSON(t *testing.T) {
	errs := Errors{{Name: ".a", Message: "bad"}}

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal([]byte(errs.Error()), &decoded))
	assert.Equal(t, ".a", decoded[0]["name"])
	assert.Equal(t, "bad", decoded[0]["message"])
}

func TestRulesCopyHelpers(t *testing.T) {
	base := nicRules()
	extended := base.With(Rule{Field: "extra", Check: IsBoolean})
	trimmed := base.Without("dnsServers")
	replaced := base.Replace("isPublic", IsString)

	assert.Len(t, base, 3)
	assert.Len(t, extended, 4)
	assert.Len(t, trimmed, 2)
	assert.True(t, replaced[0].Check("yes", nil).Valid)
	assert.False(t, base[0].Check("yes", nil).Valid)
}

func TestLeafChecks(t *testing.T) {
	tests := []struct {
		name  string
		check Func
		value interface{}
		valid bool
	}{
		{"guid", IsGUID, "3b518fac-e5c8-4f59-8ed5-d70b626f8e10", true},
		{"guid invalid", IsGUID, "not-a-guid", false},
		{"ipv4", IsValidIPAddress, testIP, true},
		{"ipv6", IsValidIPAddress, "fe80::1", true},
		{"ip invalid", IsValidIPAddress, "10.0.0", false},
		{"cidr", IsValidCIDR, "10.0.0.0/16", true},
		{"cidr invalid", IsValidCIDR, "10.0.0.0", false},
		{"port star", IsValidPortRange, "*", true},
		{"port single", IsValidPortRange, "443", true},
		{"port number", IsValidPortRange, float64(22), true},
		{"port range", IsValidPortRange, "1000-2000", true},
		{"port reversed", IsValidPortRange, "2000-1000", false},
		{"port too high", IsValidPortRange, "70000", false},
		{"range ok", IsInRange(1, 3), 2, true},
		{"range out", IsInRange(1, 3), 4, false},
		{"range float", IsInRange(1, 3), float64(3), true},
		{"one of", IsOneOf("Static", "Dynamic"), "Static", true},
		{"one of case", IsOneOf("Static", "Dynamic"), "static", false},
		{"one of fold", IsOneOfFold("Static", "Dynamic"), "static", true},
		{"url", IsValidURL, "https://example.com/azuredeploy.json", true},
		{"url invalid", IsValidURL, "example", false},
		{"blank", NotNullOrWhitespace, "  ", false},
		{"resource id", IsResourceID,
			"/subscriptions/3b518fac-e5c8-4f59-8ed5-d70b626f8e10/resourceGroups/rg/providers/Microsoft.Compute/disks/d1", true},
		{"resource id invalid", IsResourceID, "disk1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.check(tt.value, nil).Valid)
		})
	}
}

func TestTags(t *testing.T) {
	tooMany := map[string]interface{}{}
	for i := 0; i < MaxTags+1; i++ {
		tooMany[string(rune('a'+i))] = "v"
	}

	assert.True(t, Tags(nil, nil).Valid)
	assert.True(t, Tags(map[string]interface{}{"env": "test"}, nil).Valid)
	assert.False(t, Tags(tooMany, nil).Valid)
	assert.False(t, Tags(map[string]interface{}{"env": 1}, nil).Valid)
	assert.False(t, Tags("env", nil).Valid)
}

func TestEachRejectsNonArray(t *testing.T) {
	rules := Rules{{Field: "dnsServers", Check: EachIPAddress}}
	errs := Validate(map[string]interface{}{"dnsServers": testIP}, rules)
	assert.Equal(t, []string{".dnsServers"}, errs.Names())
}
