package resources

import (
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
)

// Cloud describes an Azure cloud environment.
type Cloud struct {
	// Name is the az CLI cloud name (e.g. "AzureCloud").
	Name string
	// StorageEndpointSuffix is the blob storage DNS suffix (e.g. "core.windows.net").
	StorageEndpointSuffix string
	// Configuration holds the SDK endpoints for the cloud.
	Configuration cloud.Configuration
}

// Cloud names.
const (
	AzureCloud        = "AzureCloud"
	AzureChinaCloud   = "AzureChinaCloud"
	AzureUSGovernment = "AzureUSGovernment"
)

// Clouds lists the supported clouds.
var Clouds = []Cloud{
	{Name: AzureCloud, StorageEndpointSuffix: "core.windows.net", Configuration: cloud.AzurePublic},
	{Name: AzureChinaCloud, StorageEndpointSuffix: "core.chinacloudapi.cn", Configuration: cloud.AzureChina},
	{Name: AzureUSGovernment, StorageEndpointSuffix: "core.usgovcloudapi.net", Configuration: cloud.AzureGovernment},
}

// DefaultCloud returns the public Azure cloud.
func DefaultCloud() Cloud {
	return Clouds[0]
}

// LookupCloud finds a cloud by name, ignoring case.
func LookupCloud(name string) (Cloud, error) {
	for _, c := range Clouds {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return Cloud{}, fmt.Errorf("%w: %s", ErrUnknownCloud, name)
}

// BlobEndpoint returns the blob endpoint of a storage account,
// e.g. "https://acct.blob.core.windows.net".
func (c Cloud) BlobEndpoint(account string) string {
	suffix := c.StorageEndpointSuffix
	if suffix == "" {
		suffix = DefaultCloud().StorageEndpointSuffix
	}
	return fmt.Sprintf("https://%s.blob.%s", account, suffix)
}
