package testutil

import (
	"github.com/google/uuid"

	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
)

// Defaults of NewContext.
const (
	TestResourceGroup = "test-rg"
	TestLocation      = "westus2"
)

// NewContext returns a valid building-block context in the public cloud
// with a random subscription.
func NewContext() resources.Context {
	return resources.Context{
		SubscriptionID:    uuid.NewString(),
		ResourceGroupName: TestResourceGroup,
		Location:          TestLocation,
		Cloud:             resources.DefaultCloud(),
	}
}
