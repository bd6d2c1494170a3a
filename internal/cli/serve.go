package cli

import (
	"fmt"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/p2"
	"github.com/glorpus-work/p2maven/pkg/proxy"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the enabled repositories as Maven repositories",
		Long:  "Run an HTTP proxy exposing every enabled repository under /<id>/ in Maven repository layout. Interrupt to stop; scratch files are removed on shutdown.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: settings.listen_address)")

	return cmd
}

func runServe(cmd *cobra.Command, listen string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.Settings.ListenAddress
	}

	client := loadHTTPClient(cfg)
	registry := p2.NewRegistry(client)
	var sessions []proxy.Session
	for _, repo := range cfg.EnabledRepositories() {
		s, err := openSession(cfg, registry, target{id: repo.ID, url: repo.URL, group: repo.GroupID()})
		if err != nil {
			for _, open := range sessions {
				_ = open.Close()
			}
			return fmt.Errorf("repository %s: %w", repo.ID, err)
		}
		sessions = append(sessions, s)
	}
	if len(sessions) == 0 {
		logger.Warn("No enabled repositories configured", logger.Fields{"config": getConfigPath()})
	}

	return proxy.New(sessions, client).ListenAndServe(cmd.Context(), listen)
}
