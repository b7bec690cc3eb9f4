package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// Token validity duration.
const TokenValidityHours = 1

// Errors.
var (
	ErrMockAuthFailed = errors.New("mock authentication failed")
)

// FakeCredential implements azcore.TokenCredential with fake tokens.
// Thread-safe.
type FakeCredential struct {
	mu sync.Mutex

	scopes     [][]string
	shouldFail bool
}

// NewFakeCredential creates a credential that always succeeds.
func NewFakeCredential() *FakeCredential {
	return &FakeCredential{}
}

// SetFailure configures whether GetToken fails.
func (c *FakeCredential) SetFailure(shouldFail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldFail = shouldFail
}

// GetToken implements azcore.TokenCredential.
func (c *FakeCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scopes = append(c.scopes, options.Scopes)

	select {
	case <-ctx.Done():
		return azcore.AccessToken{}, ctx.Err()
	default:
	}

	if c.shouldFail {
		return azcore.AccessToken{}, ErrMockAuthFailed
	}
	return azcore.AccessToken{
		Token:     fmt.Sprintf("fake-token-%d", len(c.scopes)),
		ExpiresOn: time.Now().Add(TokenValidityHours * time.Hour),
	}, nil
}

// GetTokenCallCount returns the number of GetToken calls.
func (c *FakeCredential) GetTokenCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scopes)
}

// Verify interface compliance.
var _ azcore.TokenCredential = (*FakeCredential)(nil)
