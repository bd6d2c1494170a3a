package cli

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/config"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/glorpus-work/p2maven/pkg/layout"
	"github.com/glorpus-work/p2maven/pkg/p2"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
	LogFormat  *string
)

// loadConfig loads the configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	format := logger.FormatText
	if LogFormat != nil && strings.EqualFold(*LogFormat, string(logger.FormatJSON)) {
		format = logger.FormatJSON
	}
	logger.InitLogger(cfg.Settings.LogLevel, format)
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// An empty path makes LoadConfig and SaveConfig report the problem.
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err.Error()})
		return ""
	}
	return defaultPath
}

// loadHTTPClient builds the fetcher with the configured timeout, user agent
// and per-repository credentials.
func loadHTTPClient(cfg *config.Config) *fetch.Client {
	return fetch.NewClient(cfg.Settings.HTTPTimeout,
		fetch.WithUserAgent(cfg.Settings.UserAgent),
		fetch.WithAuth(cfg.ToAuthScopes()),
	)
}

// target names the repository a command works on.
type target struct {
	id    string
	url   string
	group string
}

// adhocRepositoryID is the session id for repositories given by URL.
const adhocRepositoryID = "p2"

// resolveTarget accepts a configured repository id or a repository URL.
// Repositories given by URL are published under group, or under
// adhocRepositoryID when group is empty.
func resolveTarget(cfg *config.Config, arg, group string) target {
	if repo := cfg.GetRepository(arg); repo != nil {
		return target{id: repo.ID, url: repo.URL, group: repo.GroupID()}
	}
	t := target{id: adhocRepositoryID, url: arg, group: group}
	if t.group == "" {
		t.group = adhocRepositoryID
	}
	return t
}

// openSession creates a session for t with the configured scratch root and locale.
func openSession(cfg *config.Config, registry *p2.Registry, t target) (*layout.Session, error) {
	return layout.NewSession(registry, t.id, t.url,
		layout.WithScratchRoot(cfg.Settings.ScratchDir),
		layout.WithLocale(cfg.Settings.Locale),
		layout.WithGroupID(t.group),
	)
}

// closeSession closes s, logging rather than returning failures.
func closeSession(s *layout.Session) {
	if err := s.Close(); err != nil {
		logger.Warn("Failed to close session", logger.Fields{"id": s.ID(), "error": err.Error()})
	}
}
