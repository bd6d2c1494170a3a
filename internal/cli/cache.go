package cli

import (
	"fmt"
	"time"

	"github.com/glorpus-work/p2maven/pkg/cache"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command with subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage scratch directories",
		Long:  "Show information about and remove scratch directories left behind by sessions that did not close",
	}

	cmd.AddCommand(
		newCacheCleanCmd(),
		newCacheInfoCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var (
		olderThan string
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale scratch directories",
		Long:  "Remove session scratch directories not modified for --older-than. Stop running proxies before using --all.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			age, err := time.ParseDuration(olderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than %q: %w", olderThan, err)
			}
			if all {
				age = 0
			}
			return runCacheClean(cmd, age)
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", DefaultCleanAge, "Only remove directories not modified for this long")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every scratch directory regardless of age")

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show scratch directory information",
		Args:  cobra.NoArgs,
		RunE:  runCacheInfo,
	}

	return cmd
}

func newCacheDirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dir",
		Short: "Show scratch root path",
		Args:  cobra.NoArgs,
		RunE:  runCacheDir,
	}

	return cmd
}

func newCacheOperation() (*cache.Operation, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.NewOperation(cache.NewManager(cfg.Settings.ScratchDir)), nil
}

func runCacheClean(cmd *cobra.Command, olderThan time.Duration) error {
	op, err := newCacheOperation()
	if err != nil {
		return err
	}

	msg, err := op.Clean(olderThan)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runCacheInfo(cmd *cobra.Command, _ []string) error {
	op, err := newCacheOperation()
	if err != nil {
		return err
	}

	info, err := op.GetInfo()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), info)
	return nil
}

func runCacheDir(cmd *cobra.Command, _ []string) error {
	op, err := newCacheOperation()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), op.GetDirectory())
	return nil
}
