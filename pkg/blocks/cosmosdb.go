package blocks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/flavioaiello/azure-building-blocks/pkg/deploy"
	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const (
	consistencyBoundedStaleness = "BoundedStaleness"
	cosmosKindSQL               = "GlobalDocumentDB"

	minThroughput = 400
	maxThroughput = 1000000
)

// Staleness bounds applied when BoundedStaleness leaves them unset.
const (
	singleRegionMaxStalenessPrefix   = 100
	singleRegionMaxIntervalInSeconds = 5
	multiRegionMaxStalenessPrefix    = 100000
	multiRegionMaxIntervalInSeconds  = 300
)

// ErrCosmosDBNameTaken is returned by the pre-deployment hook when an account
// name is used outside the target resource group.
var ErrCosmosDBNameTaken = errors.New("cosmosdb account name is not available")

var (
	cosmosDBNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,42}[a-z0-9]$`)
	cosmosDBKinds       = []string{cosmosKindSQL, "MongoDB", "Parse"}
	consistencyLevels   = []string{"Eventual", "Session", consistencyBoundedStaleness, "Strong", "ConsistentPrefix"}
)

func cosmosDBDefaults() map[string]interface{} {
	return map[string]interface{}{
		"kind": cosmosKindSQL,
		"consistencyPolicy": map[string]interface{}{
			"defaultConsistencyLevel": "Session",
		},
		"locations":                    []interface{}{},
		"enableAutomaticFailover":      false,
		"enableMultipleWriteLocations": false,
		"databases":                    []interface{}{},
		"tags":                         map[string]interface{}{},
	}
}

// stalenessBounds fills the BoundedStaleness limits from the number of
// regions of the account.
func stalenessBounds(base, override interface{}, s merge.Scope) interface{} {
	merged := s.Merge(base, override)
	policy, ok := merged.(map[string]interface{})
	if !ok || policy["defaultConsistencyLevel"] != consistencyBoundedStaleness {
		return merged
	}
	locations := s.Override["locations"]
	if locations == nil {
		locations = s.Base["locations"]
	}
	prefix, interval := singleRegionMaxStalenessPrefix, singleRegionMaxIntervalInSeconds
	if len(values.Maps(locations)) > 1 {
		prefix, interval = multiRegionMaxStalenessPrefix, multiRegionMaxIntervalInSeconds
	}
	if policy["maxStalenessPrefix"] == nil {
		policy["maxStalenessPrefix"] = prefix
	}
	if policy["maxIntervalInSeconds"] == nil {
		policy["maxIntervalInSeconds"] = interval
	}
	return policy
}

func cosmosDBPolicy() merge.Policy {
	return merge.Policy{
		"consistencyPolicy": merge.Custom(stalenessBounds),
	}
}

// MergeCosmosDB merges and places CosmosDB account settings.
func MergeCosmosDB(in Input) ([]map[string]interface{}, error) {
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		s := values.CloneMap(item)
		if !values.Has(s, "consistencyPolicy") {
			s["consistencyPolicy"] = map[string]interface{}{}
		}
		merged := merge.Object(s, cosmosDBPolicy(), cosmosDBDefaults(), in.Defaults)
		out[i] = resources.SetupObject(merged, in.Context, nil)
	}
	return out, nil
}

func throughput(value interface{}, parent map[string]interface{}) validation.Result {
	return validation.Optional(validation.IsInRange(minThroughput, maxThroughput))(value, parent)
}

// failoverPriorities requires priorities 0..n-1, each used once.
func failoverPriorities(value interface{}, _ map[string]interface{}) validation.Result {
	locations := values.Maps(value)
	seen := make([]bool, len(locations))
	for _, l := range locations {
		p, ok := values.Int(l["failoverPriority"])
		if !ok || p < 0 || p >= len(locations) || seen[p] {
			return validation.Fail("failoverPriority values must be unique and start at 0")
		}
		seen[p] = true
	}
	return validation.OK()
}

func consistencyPolicyRules(multiRegion bool) validation.Rules {
	minPrefix, minInterval := 1, singleRegionMaxIntervalInSeconds
	if multiRegion {
		minPrefix, minInterval = multiRegionMaxStalenessPrefix, multiRegionMaxIntervalInSeconds
	}
	bounded := func(check validation.Func) validation.Func {
		return func(value interface{}, parent map[string]interface{}) validation.Result {
			if parent["defaultConsistencyLevel"] != consistencyBoundedStaleness {
				return validation.OK()
			}
			return check(value, parent)
		}
	}
	return validation.Rules{
		{Field: "defaultConsistencyLevel", Check: validation.IsOneOf(consistencyLevels...)},
		{Field: "maxStalenessPrefix", Check: bounded(validation.IsInRange(minPrefix, 2147483647))},
		{Field: "maxIntervalInSeconds", Check: bounded(validation.IsInRange(minInterval, 86400))},
	}
}

func cosmosDBRules(account map[string]interface{}) validation.Rules {
	multiRegion := len(values.Maps(account["locations"])) > 1
	sqlAPI := values.GetString(account, "kind") == cosmosKindSQL

	return placementRules().With(
		validation.Rule{Field: "name", Check: validation.Matches(cosmosDBNamePattern,
			"name must be 3 to 44 lowercase letters, numbers or hyphens, and cannot start or end with a hyphen")},
		validation.Rule{Field: "kind", Check: validation.IsOneOf(cosmosDBKinds...)},
		validation.Rule{Field: "consistencyPolicy", Check: required(consistencyPolicyRules(multiRegion), "consistencyPolicy must be specified")},
		validation.Rule{Field: "locations", Check: nonEmptyEachOf(validation.Rules{
			{Field: "locationName", Check: validation.NotNullOrWhitespace},
			{Field: "failoverPriority", Check: validation.IsInteger},
		})},
		validation.Rule{Field: "locations", Check: failoverPriorities},
		validation.Rule{Field: "enableAutomaticFailover", Check: validation.IsBoolean},
		validation.Rule{Field: "enableMultipleWriteLocations", Check: validation.IsBoolean},
		validation.Rule{Field: "databases", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if !sqlAPI && len(values.Maps(value)) > 0 {
				return validation.Fail("databases can only be specified for %s accounts", cosmosKindSQL)
			}
			return eachOf(validation.Rules{
				{Field: "name", Check: validation.NotNullOrWhitespace},
				{Field: "throughput", Check: throughput},
				{Field: "containers", Check: eachOf(validation.Rules{
					{Field: "name", Check: validation.NotNullOrWhitespace},
					{Field: "partitionKeyPath", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
						s, _ := value.(string)
						return validation.Check(strings.HasPrefix(s, "/"), "partitionKeyPath must start with /")
					}},
					{Field: "defaultTtl", Check: validation.Optional(func(value interface{}, _ map[string]interface{}) validation.Result {
						ttl, ok := values.Int(value)
						return validation.Check(ok && (ttl == -1 || ttl > 0), "defaultTtl must be -1 or a positive integer")
					})},
					{Field: "throughput", Check: throughput},
				})},
				{Field: "containers", Check: uniqueNames},
			})(value, parent)
		}},
		validation.Rule{Field: "databases", Check: uniqueNames},
		validation.Rule{Field: "tags", Check: validation.Tags},
	)
}

func transformCosmosDB(account map[string]interface{}) map[string]interface{} {
	var locations []interface{}
	for _, l := range values.Maps(account["locations"]) {
		locations = append(locations, map[string]interface{}{
			"locationName":     values.GetString(l, "locationName"),
			"failoverPriority": values.GetInt(l, "failoverPriority", 0),
		})
	}
	out := stamp(account, values.GetString(account, "name"))
	out["kind"] = values.GetString(account, "kind")
	out["tags"] = tags(account)
	out["properties"] = map[string]interface{}{
		"databaseAccountOfferType":     "Standard",
		"consistencyPolicy":            values.CloneMap(values.GetMap(account, "consistencyPolicy")),
		"locations":                    orEmpty(locations),
		"enableAutomaticFailover":      values.GetBool(account, "enableAutomaticFailover"),
		"enableMultipleWriteLocations": values.GetBool(account, "enableMultipleWriteLocations"),
	}
	return out
}

// cosmosAccount is what the deployment hooks need to know about an account.
type cosmosAccount struct {
	Name              string                   `json:"name"`
	SubscriptionID    string                   `json:"subscriptionId"`
	ResourceGroupName string                   `json:"resourceGroupName"`
	Databases         []map[string]interface{} `json:"databases"`
}

func cosmosAccounts(merged []map[string]interface{}) []cosmosAccount {
	out := make([]cosmosAccount, 0, len(merged))
	for _, a := range merged {
		out = append(out, cosmosAccount{
			Name:              values.GetString(a, "name"),
			SubscriptionID:    values.GetString(a, resources.FieldSubscriptionID),
			ResourceGroupName: values.GetString(a, resources.FieldResourceGroupName),
			Databases:         values.Maps(a["databases"]),
		})
	}
	return out
}

// checkCosmosDBNames fails when an account name is taken by an account
// outside its resource group.
func checkCosmosDBNames(accounts []cosmosAccount) Hook {
	return func(ctx context.Context, runner deploy.Runner) error {
		for _, a := range accounts {
			out, err := runner.Run(ctx, "cosmosdb", "check-name-exists", "--name", a.Name)
			if err != nil {
				return err
			}
			if strings.TrimSpace(string(out)) != "true" {
				continue
			}
			if _, err := runner.Run(ctx, "cosmosdb", "show",
				"--name", a.Name,
				"--resource-group", a.ResourceGroupName,
				"--subscription", a.SubscriptionID,
			); err != nil {
				return fmt.Errorf("%w: %s", ErrCosmosDBNameTaken, a.Name)
			}
		}
		return nil
	}
}

// provisionCosmosDB creates the SQL databases and containers of accounts.
func provisionCosmosDB(accounts []cosmosAccount) Hook {
	return func(ctx context.Context, runner deploy.Runner) error {
		for _, a := range accounts {
			for _, db := range a.Databases {
				dbName := values.GetString(db, "name")
				args := []string{"cosmosdb", "sql", "database", "create",
					"--account-name", a.Name,
					"--resource-group", a.ResourceGroupName,
					"--subscription", a.SubscriptionID,
					"--name", dbName,
				}
				if t, ok := values.Int(db["throughput"]); ok {
					args = append(args, "--throughput", strconv.Itoa(t))
				}
				if _, err := runner.Run(ctx, args...); err != nil {
					return err
				}

				for _, c := range values.Maps(db["containers"]) {
					args := []string{"cosmosdb", "sql", "container", "create",
						"--account-name", a.Name,
						"--resource-group", a.ResourceGroupName,
						"--subscription", a.SubscriptionID,
						"--database-name", dbName,
						"--name", values.GetString(c, "name"),
						"--partition-key-path", values.GetString(c, "partitionKeyPath"),
					}
					if ttl, ok := values.Int(c["defaultTtl"]); ok {
						args = append(args, "--ttl", strconv.Itoa(ttl))
					}
					if t, ok := values.Int(c["throughput"]); ok {
						args = append(args, "--throughput", strconv.Itoa(t))
					}
					if _, err := runner.Run(ctx, args...); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
}

// ProcessCosmosDB runs the CosmosDB building block. Account names are checked
// before deployment; databases and containers are created after it.
func ProcessCosmosDB(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	merged, err := MergeCosmosDB(in)
	if err != nil {
		return nil, err
	}
	if err := check(in.Settings, merged, root(cosmosDBRules)); err != nil {
		return nil, err
	}

	var stamps []interface{}
	for _, account := range merged {
		stamps = append(stamps, transformCosmosDB(account))
	}
	accounts := cosmosAccounts(merged)

	return &Result{
		ResourceGroups:          resources.ExtractResourceGroups(stamps),
		Parameters:              map[string]interface{}{"cosmosDbAccounts": orEmpty(stamps)},
		PreDeploymentParameter:  accounts,
		PreDeployment:           checkCosmosDBNames(accounts),
		PostDeploymentParameter: accounts,
		PostDeployment:          provisionCosmosDB(accounts),
	}, nil
}
