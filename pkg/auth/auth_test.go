package auth_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/glorpus-work/p2maven/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticators(t *testing.T) {
	tests := []struct {
		name     string
		auth     auth.Authenticator
		header   string
		expected string
		typ      auth.Type
	}{
		{
			name:     "basic",
			auth:     auth.BasicAuth{Username: "user", Password: "pass"},
			header:   "Authorization",
			expected: "Basic dXNlcjpwYXNz",
			typ:      auth.BasicAuthType,
		},
		{
			name:     "empty basic",
			auth:     auth.BasicAuth{},
			header:   "Authorization",
			expected: "Basic Og==",
			typ:      auth.BasicAuthType,
		},
		{
			name:     "bearer",
			auth:     auth.BearerAuth{Token: "abc"},
			header:   "Authorization",
			expected: "Bearer abc",
			typ:      auth.BearerAuthType,
		},
		{
			name:     "header",
			auth:     auth.HeaderAuth{Headers: map[string]string{"X-Api-Key": "secret"}},
			header:   "X-Api-Key",
			expected: "secret",
			typ:      auth.HeaderAuthType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
			require.NoError(t, err)
			require.NoError(t, tt.auth.Apply(req))
			assert.Equal(t, tt.expected, req.Header.Get(tt.header))
			assert.Equal(t, tt.typ, tt.auth.Type())
		})
	}
}

func TestScopes_For(t *testing.T) {
	site := auth.BearerAuth{Token: "site"}
	nested := auth.BasicAuth{Username: "u", Password: "p"}
	scopes := auth.NewScopes(map[string]auth.Authenticator{
		"https://download.example.org/":          site,
		"https://download.example.org/releases/": nested,
		"https://ignored.example.org/":           nil,
	})
	assert.Equal(t, 2, scopes.Len())

	tests := []struct {
		url      string
		expected auth.Authenticator
	}{
		{"https://download.example.org/releases/2024-03/artifacts.xml", nested},
		{"https://download.example.org/other/artifacts.xml", site},
		{"https://ignored.example.org/artifacts.xml", nil},
		{"https://elsewhere.example.org/", nil},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, scopes.For(u))
		})
	}

	var none *auth.Scopes
	assert.Nil(t, none.For(&url.URL{}))
}
