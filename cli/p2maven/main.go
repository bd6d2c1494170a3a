package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glorpus-work/p2maven/internal/cli"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	logFormat  string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "p2maven",
		Short: "Serve Eclipse p2 repositories as Maven repositories",
		Long: `p2maven maps Maven coordinates onto Eclipse p2 repositories:
- Resolution: list bundles, locate artifacts, synthesize POMs and maven-metadata.xml
- Transfer: download artifacts with checksum verification
- Proxy: serve registered repositories over HTTP in Maven layout`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.LogFormat = &logFormat

	cmd.AddCommand(
		cli.NewBundlesCmd(),
		cli.NewLocateCmd(),
		cli.NewMetadataCmd(),
		cli.NewGetCmd(),
		cli.NewServeCmd(),
		cli.NewConfigCmd(),
		cli.NewCacheCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
