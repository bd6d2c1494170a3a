package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/config"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/spf13/cobra"
)

// NewConfigCmd creates the config command with subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View and modify the registered repositories and p2maven settings",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
		newConfigAddCmd(),
		newConfigRemoveCmd(),
		newConfigSetCmd(),
		newConfigGetCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current settings and registered repositories",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  "Create a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration file")

	return cmd
}

// Number of arguments expected by the add and set commands.
const pairCommandArgs = 2

func newConfigAddCmd() *cobra.Command {
	var (
		group    string
		disabled bool
		username string
		password string
		token    string
	)

	cmd := &cobra.Command{
		Use:   "add ID URL",
		Short: "Register a p2 repository",
		Long:  "Register a p2 repository under an id. Its bundles are published under --group, which defaults to the id.",
		Args:  cobra.ExactArgs(pairCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			repo := &config.RepositoryConfig{
				ID:      args[0],
				URL:     args[1],
				Group:   group,
				Enabled: !disabled,
			}
			switch {
			case token != "":
				repo.Auth = &config.AuthConfig{BearerAuth: &config.BearerAuth{Token: token}}
			case username != "":
				repo.Auth = &config.AuthConfig{BasicAuth: &config.BasicAuth{Username: username, Password: password}}
			}
			return runConfigAdd(repo)
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Maven group the bundles are published under")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Register the repository without enabling it")
	cmd.Flags().StringVar(&username, "username", "", "Basic authentication user")
	cmd.Flags().StringVar(&password, "password", "", "Basic authentication password")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token")
	cmd.MarkFlagsMutuallyExclusive("token", "username")

	return cmd
}

func newConfigRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove ID",
		Short: "Unregister a p2 repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConfigRemove(args[0])
		},
	}

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Set a settings key to a specific value",
		Args:  cobra.ExactArgs(pairCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Get a configuration value",
		Long:  "Get the value of a specific settings key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd, args[0])
		},
	}

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	tabWriter := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "SETTING\tVALUE")
	_, _ = fmt.Fprintln(tabWriter, "-------\t-----")

	settingsMap := cfg.ToMap()
	keys := make([]string, 0, len(settingsMap))
	for key := range settingsMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\n", key, settingsMap[key])
	}
	_ = tabWriter.Flush()

	_, _ = fmt.Fprintf(out, "\nRepositories (%d):\n", len(cfg.Repositories))
	for _, repo := range cfg.Repositories {
		status := "enabled"
		if !repo.Enabled {
			status = "disabled"
		}
		authType := ""
		if a := repo.Auth.Authenticator(); a != nil {
			authType = ", " + string(a.Type()) + " auth"
		}
		_, _ = fmt.Fprintf(out, "  %s: %s (group %s, %s%s)\n", repo.ID, repo.URL, repo.GroupID(), status, authType)
	}

	return nil
}

func runConfigInit(force bool) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite): %w", configPath, errors.ErrConfigFileExists)
	}

	if err := config.DefaultConfig().SaveConfig(configPath); err != nil {
		return fmt.Errorf("failed to save default configuration: %w", err)
	}

	logger.Success("Configuration file created", logger.Fields{"path": configPath})
	return nil
}

func runConfigAdd(repo *config.RepositoryConfig) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.AddRepository(repo); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.SaveConfig(getConfigPath()); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	logger.Success("Repository registered", logger.Fields{"id": repo.ID, "url": repo.URL, "group": repo.GroupID()})
	return nil
}

func runConfigRemove(id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.RemoveRepository(id) {
		return fmt.Errorf("repository %s: %w", id, errors.ErrNotFound)
	}
	if err := cfg.SaveConfig(getConfigPath()); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	logger.Success("Repository removed", logger.Fields{"id": id})
	return nil
}

func runConfigSet(key, value string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.SetValue(key, value); err != nil {
		return fmt.Errorf("failed to set configuration value: %w", err)
	}

	if err := cfg.SaveConfig(getConfigPath()); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	logger.Success("Configuration updated", logger.Fields{"key": key, "value": value})
	return nil
}

func runConfigGet(cmd *cobra.Command, key string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	value, err := cfg.GetValue(key)
	if err != nil {
		return fmt.Errorf("failed to get configuration value: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}
