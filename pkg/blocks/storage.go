package blocks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const (
	// MaxStorageAccountNameLength is the Azure limit for storage account names.
	MaxStorageAccountNameLength = 24
	maxStorageSuffixLength      = 8
)

var storageSkus = []string{"Standard_LRS", "Standard_GRS", "Standard_RAGRS", "Standard_ZRS", "Premium_LRS"}

func storageDefaults() map[string]interface{} {
	return map[string]interface{}{
		"nameSuffix":               "st",
		"count":                    1,
		"skuType":                  "Premium_LRS",
		"managed":                  true,
		"accounts":                 []interface{}{},
		"supportsHttpsTrafficOnly": true,
		"encryptionEnabled":        false,
	}
}

func diagnosticStorageDefaults() map[string]interface{} {
	return map[string]interface{}{
		"nameSuffix":               "diag",
		"count":                    1,
		"skuType":                  "Standard_LRS",
		"managed":                  false,
		"accounts":                 []interface{}{},
		"supportsHttpsTrafficOnly": true,
		"encryptionEnabled":        false,
	}
}

func storageRules() validation.Rules {
	return validation.Rules{
		{Field: "nameSuffix", Check: validation.NotNullOrWhitespace},
		{Field: "count", Check: validation.IsInRange(0, 100)},
		{Field: "skuType", Check: validation.IsOneOf(storageSkus...)},
		{Field: "managed", Check: validation.IsBoolean},
		{Field: "accounts", Check: validation.Optional(validation.Each(validation.NotNullOrWhitespace))},
		{Field: "supportsHttpsTrafficOnly", Check: validation.IsBoolean},
		{Field: "encryptionEnabled", Check: validation.IsBoolean},
	}
}

func diagnosticStorageRules() validation.Rules {
	return storageRules().
		Replace("skuType", func(value interface{}, parent map[string]interface{}) validation.Result {
			if r := validation.IsOneOf(storageSkus...)(value, parent); !r.Valid {
				return r
			}
			return validation.Check(!strings.HasPrefix(fmt.Sprint(value), "Premium"),
				"Diagnostic storage accounts cannot use a Premium sku")
		}).
		Replace("managed", func(value interface{}, _ map[string]interface{}) validation.Result {
			return validation.Check(value == false, "Diagnostic storage accounts cannot be managed")
		})
}

// storageAccountNames returns the existing accounts followed by generated
// names, count names in total. Generated names are derived from placement,
// prefix and suffix so repeated runs produce the same names.
func storageAccountNames(sa map[string]interface{}, namePrefix string) (existing, generated []string) {
	existing = values.Strings(sa["accounts"])
	count := values.GetInt(sa, "count", 0)

	suffix := sanitizeStorageName(values.GetString(sa, "nameSuffix"))
	if len(suffix) > maxStorageSuffixLength {
		suffix = suffix[:maxStorageSuffixLength]
	}
	for k := 0; k < count-len(existing); k++ {
		seed := strings.Join([]string{
			values.GetString(sa, resources.FieldSubscriptionID),
			values.GetString(sa, resources.FieldResourceGroupName),
			namePrefix, suffix, fmt.Sprint(k),
		}, "/")
		sum := sha256.Sum256([]byte(seed))
		hash := hex.EncodeToString(sum[:])
		generated = append(generated, hash[:MaxStorageAccountNameLength-len(suffix)]+suffix)
	}
	return existing, generated
}

func sanitizeStorageName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// transformStorageAccounts builds stamps for generated account names.
func transformStorageAccounts(sa map[string]interface{}, generated []string) []interface{} {
	out := make([]interface{}, 0, len(generated))
	for _, name := range generated {
		s := stamp(sa, name)
		s["kind"] = "Storage"
		s["sku"] = map[string]interface{}{"name": values.GetString(sa, "skuType")}
		s["properties"] = map[string]interface{}{
			"supportsHttpsTrafficOnly": values.GetBool(sa, "supportsHttpsTrafficOnly"),
			"encryption": map[string]interface{}{
				"keySource": "Microsoft.Storage",
				"services": map[string]interface{}{
					"blob": map[string]interface{}{"enabled": values.GetBool(sa, "encryptionEnabled")},
				},
			},
		}
		out = append(out, s)
	}
	return out
}

// roundRobin picks the account of VM i.
func roundRobin(accounts []string, i int) string {
	if len(accounts) == 0 {
		return ""
	}
	return accounts[i%len(accounts)]
}
