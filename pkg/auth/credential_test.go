package auth

import (
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Test constants to avoid literal duplication.
const (
	testClientID = "11111111-2222-3333-4444-555555555555"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindDefault, false},
		{"default", KindDefault, false},
		{"CLI", KindCLI, false},
		{" managed-identity ", KindManagedIdentity, false},
		{"client-secret", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCredentialKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCredential(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	for _, kind := range []Kind{KindCLI, KindManagedIdentity} {
		t.Run(string(kind), func(t *testing.T) {
			cred, err := NewCredential(Options{Kind: kind, Cloud: cloud.AzurePublic, ClientID: testClientID}, logger)
			require.NoError(t, err)
			assert.NotNil(t, cred)
		})
	}

	_, err := NewCredential(Options{Kind: "client-secret"}, logger)
	assert.ErrorIs(t, err, ErrUnknownCredentialKind)
}

func TestScope(t *testing.T) {
	assert.Equal(t, "https://management.core.windows.net/.default", Scope(cloud.AzurePublic))
	assert.Equal(t, "https://management.core.chinacloudapi.cn/.default", Scope(cloud.AzureChina))
	assert.Equal(t, Scope(cloud.AzurePublic), Scope(cloud.Configuration{}))
	assert.Equal(t, []string{Scope(cloud.AzureGovernment)}, TokenOptions(cloud.AzureGovernment).Scopes)
}

func TestMaskClientID(t *testing.T) {
	assert.Equal(t, "11111111...", maskClientID(testClientID))
	assert.Equal(t, "****", maskClientID("short"))
}
