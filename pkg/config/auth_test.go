package config

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/glorpus-work/p2maven/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestAuthConfig_Authenticator(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *AuthConfig
		expected auth.Authenticator
	}{
		{name: "nil", cfg: nil, expected: nil},
		{name: "empty", cfg: &AuthConfig{}, expected: nil},
		{
			name:     "basic",
			cfg:      &AuthConfig{BasicAuth: &BasicAuth{Username: "user", Password: "pass"}},
			expected: &auth.BasicAuth{Username: "user", Password: "pass"},
		},
		{
			name:     "header",
			cfg:      &AuthConfig{HeaderAuth: &HeaderAuth{Headers: map[string]string{"X-API-Key": "secret-key"}}},
			expected: &auth.HeaderAuth{Headers: map[string]string{"X-API-Key": "secret-key"}},
		},
		{
			name:     "bearer",
			cfg:      &AuthConfig{BearerAuth: &BearerAuth{Token: "token123"}},
			expected: &auth.BearerAuth{Token: "token123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.Authenticator())
		})
	}
}

func TestToAuthScopes(t *testing.T) {
	cfg := &Config{Repositories: []*RepositoryConfig{
		{
			ID: "one", URL: "https://example.com/repo1", Enabled: true,
			Auth: &AuthConfig{BasicAuth: &BasicAuth{Username: "user1", Password: "pass1"}},
		},
		{
			ID: "two", URL: "https://example.com/repo2", Enabled: true,
			Auth: &AuthConfig{BearerAuth: &BearerAuth{Token: "token123"}},
		},
		{
			ID: "off", URL: "https://example.com/off", Enabled: false,
			Auth: &AuthConfig{BearerAuth: &BearerAuth{Token: "unused"}},
		},
		{ID: "open", URL: "https://example.com/open", Enabled: true},
	}}

	scopes := cfg.ToAuthScopes()
	assert.Equal(t, 2, scopes.Len())

	tests := []struct {
		url    string
		header string
	}{
		{"https://example.com/repo1/plugins/a_1.0.jar", "Basic dXNlcjE6cGFzczE="},
		{"https://example.com/repo2/artifacts.xml", "Bearer token123"},
		{"https://example.com/off/artifacts.xml", ""},
		{"https://example.com/open/artifacts.xml", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.url, nil)
			if a := scopes.For(mustParse(t, tt.url)); a != nil {
				require.NoError(t, a.Apply(req))
			}
			assert.Equal(t, tt.header, req.Header.Get("Authorization"))
		})
	}
}

func TestToAuthScopes_Empty(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0, cfg.ToAuthScopes().Len())
}
