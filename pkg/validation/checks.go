package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/go-playground/validator/v10"

	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

// Tag limits enforced by Azure Resource Manager.
const (
	MaxTags           = 15
	MaxTagNameLength  = 512
	MaxTagValueLength = 256
)

// Validation messages shared across modules.
const (
	MsgNullOrWhitespace = "Value cannot be undefined, null, empty, or only whitespace"
	MsgBoolean          = "Value must be a boolean"
	MsgGUID             = "Value must be a valid GUID"
	MsgIPAddress        = "Value must be a valid IP address"
	MsgCIDR             = "Value must be a valid CIDR"
	MsgPortRange        = "Value must be a single integer, a range of integers, or *"
	MsgURL              = "Value must be a valid URL"
	MsgResourceID       = "Value must be a valid resource id"
	MsgInteger          = "Value must be an integer"
	MsgString           = "Value must be a string"
)

var portRangePattern = regexp.MustCompile(`^(\d{1,5})(-(\d{1,5}))?$`)

// validate is the singleton validator instance.
var validate = validator.New()

// IsNullOrWhitespace reports whether v is nil or a blank string.
func IsNullOrWhitespace(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// NotNullOrWhitespace fails on nil or blank strings.
func NotNullOrWhitespace(value interface{}, _ map[string]interface{}) Result {
	return Check(!IsNullOrWhitespace(value), MsgNullOrWhitespace)
}

// IsBoolean fails unless value is a bool.
func IsBoolean(value interface{}, _ map[string]interface{}) Result {
	_, ok := value.(bool)
	return Check(ok, MsgBoolean)
}

// IsString fails unless value is a string.
func IsString(value interface{}, _ map[string]interface{}) Result {
	_, ok := value.(string)
	return Check(ok, MsgString)
}

// IsGUID fails unless value is a GUID string.
func IsGUID(value interface{}, _ map[string]interface{}) Result {
	return Check(GUID(value), MsgGUID)
}

// GUID reports whether v is a GUID string.
func GUID(v interface{}) bool {
	s, ok := v.(string)
	return ok && validate.Var(strings.ToLower(s), "required,uuid") == nil
}

// IsValidIPAddress fails unless value is an IPv4 or IPv6 address.
func IsValidIPAddress(value interface{}, _ map[string]interface{}) Result {
	return Check(IPAddress(value), MsgIPAddress)
}

// IPAddress reports whether v is an IP address string.
func IPAddress(v interface{}) bool {
	s, ok := v.(string)
	return ok && validate.Var(s, "required,ip") == nil
}

// IsValidCIDR fails unless value is a CIDR block.
func IsValidCIDR(value interface{}, _ map[string]interface{}) Result {
	return Check(CIDR(value), MsgCIDR)
}

// CIDR reports whether v is a CIDR string.
func CIDR(v interface{}) bool {
	s, ok := v.(string)
	return ok && validate.Var(s, "required,cidr") == nil
}

// IsValidURL fails unless value is an absolute URL.
func IsValidURL(value interface{}, _ map[string]interface{}) Result {
	s, ok := value.(string)
	return Check(ok && validate.Var(s, "required,url") == nil, MsgURL)
}

// IsResourceID fails unless value parses as an Azure resource ID.
func IsResourceID(value interface{}, _ map[string]interface{}) Result {
	return Check(ResourceID(value), MsgResourceID)
}

// ResourceID reports whether v is a parseable Azure resource ID.
func ResourceID(v interface{}) bool {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return false
	}
	_, err := arm.ParseResourceID(s)
	return err == nil
}

// IsValidPortRange accepts "*", a single port, or "low-high".
func IsValidPortRange(value interface{}, _ map[string]interface{}) Result {
	return Check(PortRange(value), MsgPortRange)
}

// PortRange reports whether v is a valid port or port range.
func PortRange(v interface{}) bool {
	if i, ok := values.Int(v); ok {
		return i >= 1 && i <= 65535
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	if s == "*" {
		return true
	}
	m := portRangePattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	low, _ := strconv.Atoi(m[1])
	high := low
	if m[3] != "" {
		high, _ = strconv.Atoi(m[3])
	}
	return low >= 1 && high <= 65535 && low <= high
}

// IsInRange fails unless value is an integer in [lower, upper].
func IsInRange(lower, upper int) Func {
	return func(value interface{}, _ map[string]interface{}) Result {
		i, ok := values.Int(value)
		return Check(ok && i >= lower && i <= upper,
			fmt.Sprintf("Value must be between %d and %d", lower, upper))
	}
}

// IsInteger fails unless value is a whole number.
func IsInteger(value interface{}, _ map[string]interface{}) Result {
	_, ok := values.Int(value)
	return Check(ok, MsgInteger)
}

// IsOneOf fails unless value is one of allowed (exact match).
func IsOneOf(allowed ...string) Func {
	return func(value interface{}, _ map[string]interface{}) Result {
		s, _ := value.(string)
		return Check(Contains(allowed, s), "Value must be one of the following values: "+Join(allowed))
	}
}

// IsOneOfFold is IsOneOf with case-insensitive matching.
func IsOneOfFold(allowed ...string) Func {
	return func(value interface{}, _ map[string]interface{}) Result {
		s, _ := value.(string)
		return Check(ContainsFold(allowed, s), "Value must be one of the following values: "+Join(allowed))
	}
}

// Contains reports whether s is in list.
func Contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ContainsFold reports whether s is in list ignoring case.
func ContainsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Matches fails unless value is a string matching re.
func Matches(re *regexp.Regexp, message string) Func {
	return func(value interface{}, _ map[string]interface{}) Result {
		s, ok := value.(string)
		return Check(ok && re.MatchString(s), message)
	}
}

// Tags validates an Azure tags object.
func Tags(value interface{}, _ map[string]interface{}) Result {
	if value == nil {
		return OK()
	}
	tags, ok := value.(map[string]interface{})
	if !ok {
		return Fail("Value must be an object")
	}
	if len(tags) > MaxTags {
		return Fail("Only %d tags are allowed", MaxTags)
	}
	for name, v := range tags {
		if len(name) > MaxTagNameLength {
			return Fail("Tag names can only be up to %d characters in length", MaxTagNameLength)
		}
		s, ok := v.(string)
		if !ok {
			return Fail("Tag values must be strings")
		}
		if len(s) > MaxTagValueLength {
			return Fail("Tag values can only be up to %d characters in length", MaxTagValueLength)
		}
	}
	return OK()
}

// EachIPAddress validates a list of IP addresses element-wise.
var EachIPAddress = Each(IsValidIPAddress)

// EachCIDR validates a list of CIDR blocks element-wise.
var EachCIDR = Each(IsValidCIDR)

// NonEmptyEach validates a non-empty list element-wise.
func NonEmptyEach(check Func) Func {
	return func(value interface{}, _ map[string]interface{}) Result {
		items, ok := value.([]interface{})
		if !ok || len(items) == 0 {
			return Fail("Value must be a non-empty array")
		}
		return Recurse(check)
	}
}
