// Package auth provides authentication support for outgoing repository requests.
package auth

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Authenticator defines the interface for applying authentication to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// HeaderAuth represents authentication via custom HTTP headers.
type HeaderAuth struct {
	Headers map[string]string
}

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token string
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	BasicAuthType  Type = "basic"
	HeaderAuthType Type = "header"
	BearerAuthType Type = "bearer"
)

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type returns BasicAuthType.
func (b BasicAuth) Type() Type { return BasicAuthType }

// Apply adds custom headers to the HTTP request.
func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// Type returns HeaderAuthType.
func (h HeaderAuth) Type() Type { return HeaderAuthType }

// Apply adds a Bearer token to the Authorization header of the HTTP request.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type returns BearerAuthType.
func (b BearerAuth) Type() Type { return BearerAuthType }

// Scopes selects an Authenticator by URL prefix. Composite repositories may pull
// children from other hosts, so credentials are bound to a location rather than
// to a repository id.
type Scopes struct {
	prefixes []string
	byPrefix map[string]Authenticator
}

// NewScopes builds a Scopes from a prefix to Authenticator map.
// Nil authenticators are ignored.
func NewScopes(byPrefix map[string]Authenticator) *Scopes {
	s := &Scopes{byPrefix: make(map[string]Authenticator, len(byPrefix))}
	for prefix, a := range byPrefix {
		if a == nil || prefix == "" {
			continue
		}
		s.byPrefix[prefix] = a
		s.prefixes = append(s.prefixes, prefix)
	}
	// longest prefix first
	sort.Slice(s.prefixes, func(i, j int) bool { return len(s.prefixes[i]) > len(s.prefixes[j]) })
	return s
}

// For returns the Authenticator whose prefix is the longest match for u, or nil.
func (s *Scopes) For(u *url.URL) Authenticator {
	if s == nil || u == nil {
		return nil
	}
	target := u.String()
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(target, prefix) {
			return s.byPrefix[prefix]
		}
	}
	return nil
}

// Len reports how many scopes are configured.
func (s *Scopes) Len() int {
	if s == nil {
		return 0
	}
	return len(s.prefixes)
}
