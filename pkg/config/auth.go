package config

import (
	"fmt"

	"github.com/glorpus-work/p2maven/pkg/auth"
	"github.com/glorpus-work/p2maven/pkg/errors"
)

// AuthConfigContainer defines the interface for authentication configuration types that can be converted to an Authenticator.
type AuthConfigContainer interface {
	ToAuthenticator() auth.Authenticator
}

// AuthConfig holds the credentials of a repository. At most one kind may be set.
type AuthConfig struct {
	BasicAuth  *BasicAuth  `yaml:"basic,omitempty"`
	HeaderAuth *HeaderAuth `yaml:"header,omitempty"`
	BearerAuth *BearerAuth `yaml:"bearer,omitempty"`
}

// BasicAuth holds configuration for HTTP Basic Authentication.
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HeaderAuth holds configuration for custom header-based authentication.
type HeaderAuth struct {
	Headers map[string]string `yaml:"headers"`
}

// BearerAuth holds configuration for Bearer token authentication.
type BearerAuth struct {
	Token string `yaml:"token"`
}

// ToAuthenticator converts the BasicAuth configuration to an Authenticator.
func (b *BasicAuth) ToAuthenticator() auth.Authenticator {
	return &auth.BasicAuth{
		Username: b.Username,
		Password: b.Password,
	}
}

// ToAuthenticator converts the HeaderAuth configuration to an Authenticator.
func (h *HeaderAuth) ToAuthenticator() auth.Authenticator {
	return &auth.HeaderAuth{
		Headers: h.Headers,
	}
}

// ToAuthenticator converts the BearerAuth configuration to an Authenticator.
func (b *BearerAuth) ToAuthenticator() auth.Authenticator {
	return &auth.BearerAuth{
		Token: b.Token,
	}
}

func (a *AuthConfig) containers() []AuthConfigContainer {
	if a == nil {
		return nil
	}
	var out []AuthConfigContainer
	if a.BasicAuth != nil {
		out = append(out, a.BasicAuth)
	}
	if a.HeaderAuth != nil {
		out = append(out, a.HeaderAuth)
	}
	if a.BearerAuth != nil {
		out = append(out, a.BearerAuth)
	}
	return out
}

func (a *AuthConfig) validate() error {
	if n := len(a.containers()); n > 1 {
		return fmt.Errorf("%d authentication kinds configured, expected one: %w", n, errors.ErrConfigValidation)
	}
	return nil
}

// Authenticator returns the configured authenticator, or nil.
func (a *AuthConfig) Authenticator() auth.Authenticator {
	if c := a.containers(); len(c) > 0 {
		return c[0].ToAuthenticator()
	}
	return nil
}

// ToAuthScopes binds every repository's credentials to its URL, so requests
// for that repository and anything beneath it are authenticated. Disabled
// repositories contribute nothing.
func (c *Config) ToAuthScopes() *auth.Scopes {
	byPrefix := make(map[string]auth.Authenticator, len(c.Repositories))
	for _, repo := range c.Repositories {
		if !repo.Enabled {
			continue
		}
		if a := repo.Auth.Authenticator(); a != nil {
			byPrefix[repo.URL] = a
		}
	}
	return auth.NewScopes(byPrefix)
}
