package config

import (
	"net/url"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML treats a missing enabled key as true.
func (rc *RepositoryConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain RepositoryConfig
	p := plain{Enabled: true}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*rc = RepositoryConfig(p)
	return nil
}

// GroupID is the Maven group the repository's bundles are published under.
func (rc *RepositoryConfig) GroupID() string {
	if rc.Group != "" {
		return rc.Group
	}
	return rc.ID
}

// GetURL parses and returns the repository URL.
func (rc *RepositoryConfig) GetURL() *url.URL {
	parse, err := url.Parse(rc.URL)
	if err != nil {
		return nil
	}
	return parse
}
