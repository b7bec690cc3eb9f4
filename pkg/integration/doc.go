// Package integration provides integration tests for the ARM deployer.
//
// These tests require Azure credentials and an existing resource group.
// They are excluded from normal test runs via build tags.
//
// To run integration tests:
//
//	export AZURE_SUBSCRIPTION_ID=your-subscription-id
//	export AZBB_RESOURCE_GROUP=your-resource-group
//	go test -tags=integration -v ./pkg/integration/...
//
// Required environment variables:
//   - AZURE_SUBSCRIPTION_ID: Target subscription for tests
//   - AZBB_RESOURCE_GROUP: Resource group deployments run against
//   - AZURE_LOCATION: Azure region (default: westeurope)
//   - AZBB_INTEGRATION_TEMPLATE_URI: Optional linked template to deploy
//
// Authentication:
//   - Uses DefaultAzureCredential through pkg/auth
package integration
