package cli

import (
	stderrors "errors"
	"fmt"
	"path/filepath"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/connector"
	"github.com/glorpus-work/p2maven/pkg/download"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/glorpus-work/p2maven/pkg/layout"
	"github.com/glorpus-work/p2maven/pkg/maven"
	"github.com/glorpus-work/p2maven/pkg/p2"
	"github.com/spf13/cobra"
)

// NewBundlesCmd creates the bundles command.
func NewBundlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundles REPOSITORY",
		Short: "List the bundles of a p2 repository",
		Long:  "Resolve a p2 repository, following composite children, and print its bundles as id:version lines. REPOSITORY is a configured id or a URL.",
		Args:  cobra.ExactArgs(1),
		RunE:  runBundles,
	}

	return cmd
}

// NewLocateCmd creates the locate command.
func NewLocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate REPOSITORY COORDINATES",
		Short: "Print where a Maven artifact is served from",
		Long:  "Map groupId:artifactId[:extension[:classifier]]:version onto the repository and print the resulting location. Downloaded and synthesized files are kept in the scratch root until 'p2maven cache clean'.",
		Args:  cobra.ExactArgs(pairCommandArgs),
		RunE:  runLocate,
	}

	return cmd
}

// Number of arguments expected by the metadata command.
const metadataCommandArgs = 3

// NewMetadataCmd creates the metadata command.
func NewMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata REPOSITORY GROUP ARTIFACT",
		Short: "Print the synthesized maven-metadata.xml of an artifact",
		Args:  cobra.ExactArgs(metadataCommandArgs),
		RunE:  runMetadata,
	}

	return cmd
}

// NewGetCmd creates the get command.
func NewGetCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "get REPOSITORY COORDINATES...",
		Short: "Download Maven artifacts from a p2 repository",
		Long:  "Download artifacts into --dir, verifying declared checksums and writing them next to each file.",
		Args:  cobra.MinimumNArgs(pairCommandArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0], args[1:], dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", DefaultDownloadDir, "Destination directory")

	return cmd
}

func runBundles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := loadHTTPClient(cfg)
	s, err := openSession(cfg, p2.NewRegistry(client), resolveTarget(cfg, args[0], ""))
	if err != nil {
		return err
	}
	defer closeSession(s)

	if s.Inert() {
		return fmt.Errorf("repository %s: %w", args[0], errors.ErrUnresolvedPlaceholder)
	}
	bundles, err := s.Bundles(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, b := range bundles {
		_, _ = fmt.Fprintln(out, b.String())
	}
	logger.Debug("Listed bundles", logger.Fields{"repository": args[0], "count": len(bundles)})
	return nil
}

func runLocate(cmd *cobra.Command, args []string) error {
	a, err := maven.ParseArtifact(args[1])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := loadHTTPClient(cfg)
	s, err := openSession(cfg, p2.NewRegistry(client), resolveTarget(cfg, args[0], a.GroupID))
	if err != nil {
		return err
	}

	u, err := s.Locate(cmd.Context(), a)
	if err == nil && (u == nil || layout.IsPlaceholder(u)) {
		err = fmt.Errorf("artifact %s: %w", a, errors.ErrNotFound)
	}
	if err != nil {
		closeSession(s)
		return err
	}
	// Local locations live in the scratch directory, which stays until cache clean.
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), u.String())
	logger.Debug("Keeping scratch directory", logger.Fields{"path": s.ScratchDir()})
	return nil
}

func runMetadata(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := loadHTTPClient(cfg)
	s, err := openSession(cfg, p2.NewRegistry(client), resolveTarget(cfg, args[0], args[1]))
	if err != nil {
		return err
	}
	defer closeSession(s)

	md := maven.Metadata{GroupID: args[1], ArtifactID: args[2]}
	u, err := s.LocateMetadata(cmd.Context(), md)
	if err != nil {
		return err
	}
	if u == nil || layout.IsPlaceholder(u) {
		return fmt.Errorf("metadata %s: %w", md, errors.ErrNotFound)
	}
	data, ok, err := fetch.ReadAll(cmd.Context(), client, u)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("metadata %s: %w", md, errors.ErrNotFound)
	}
	_, _ = cmd.OutOrStdout().Write(data)
	return nil
}

func runGet(cmd *cobra.Command, repository string, coordinates []string, dir string) error {
	artifacts := make([]*connector.ArtifactDownload, 0, len(coordinates))
	for _, c := range coordinates {
		a, err := maven.ParseArtifact(c)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, &connector.ArtifactDownload{
			Artifact: a,
			Dest:     filepath.Join(dir, a.FileName()),
		})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := loadHTTPClient(cfg)
	s, err := openSession(cfg, p2.NewRegistry(client), resolveTarget(cfg, repository, artifacts[0].Artifact.GroupID))
	if err != nil {
		return err
	}
	conn := connector.New(s, download.NewManager(client), client,
		connector.WithConcurrency(cfg.Settings.MaxConcurrent))
	defer func() { _ = conn.Close() }()

	if err := conn.Get(cmd.Context(), artifacts, nil); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed []error
	for _, a := range artifacts {
		if a.Err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", a.Artifact, a.Err))
			continue
		}
		_, _ = fmt.Fprintln(out, a.Dest)
	}
	if len(failed) > 0 {
		logger.Error("Some artifacts could not be downloaded", logger.Fields{"failed": len(failed), "total": len(artifacts)})
		return stderrors.Join(failed...)
	}
	logger.Success("Downloaded artifacts", logger.Fields{"count": len(artifacts), "dir": dir})
	return nil
}
