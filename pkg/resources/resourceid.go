package resources

import (
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"

	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
)

// ResourceID builds an Azure resource ID.
//
// resourceType is "Namespace/type" or "Namespace/type/subType"; a trailing
// slash is ignored. A sub-resource name is required for three-segment types
// and forbidden for two-segment ones.
func ResourceID(subscriptionID, resourceGroupName, resourceType, resourceName string, subresourceName ...string) (string, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return "", ErrMissingSubscriptionID
	}
	if !validation.GUID(subscriptionID) {
		return "", fmt.Errorf("%w: %s", ErrInvalidSubscriptionID, subscriptionID)
	}
	if strings.TrimSpace(resourceGroupName) == "" {
		return "", ErrMissingResourceGroupName
	}
	if strings.TrimSpace(resourceType) == "" {
		return "", ErrMissingResourceType
	}

	segments := strings.Split(strings.TrimSuffix(resourceType, "/"), "/")
	if len(segments) < 2 || len(segments) > 3 {
		return "", fmt.Errorf("%w: %s", ErrInvalidResourceType, resourceType)
	}
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			return "", fmt.Errorf("%w: %s", ErrInvalidResourceType, resourceType)
		}
	}

	if strings.TrimSpace(resourceName) == "" {
		return "", ErrMissingResourceName
	}

	sub := ""
	if len(subresourceName) > 0 {
		sub = subresourceName[0]
	}

	id := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/%s/%s/%s",
		subscriptionID, resourceGroupName, segments[0], segments[1], resourceName)

	if len(segments) == 2 {
		if len(subresourceName) > 0 {
			return "", ErrUnexpectedSubresourceName
		}
		return id, nil
	}

	if strings.TrimSpace(sub) == "" {
		return "", ErrMissingSubresourceName
	}
	return id + "/" + segments[2] + "/" + sub, nil
}

// IsResourceID reports whether id parses as an Azure resource ID.
func IsResourceID(id string) bool {
	return validation.ResourceID(id)
}

// ParseResourceID parses an Azure resource ID.
func ParseResourceID(id string) (*arm.ResourceID, error) {
	return arm.ParseResourceID(id)
}
