package connector

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glorpus-work/p2maven/pkg/download"
	mock_download "github.com/glorpus-work/p2maven/pkg/download/mocks"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/glorpus-work/p2maven/pkg/layout"
	"github.com/glorpus-work/p2maven/pkg/maven"
	"github.com/glorpus-work/p2maven/pkg/p2"
	"github.com/glorpus-work/p2maven/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const repoID = "example"

func newConnector(t *testing.T, rawURL string, opts ...Option) (*Connector, *layout.Session) {
	t.Helper()
	client := fetch.NewClient(5 * time.Second)
	s, err := layout.NewSession(p2.NewRegistry(client), repoID, rawURL, layout.WithScratchRoot(t.TempDir()))
	require.NoError(t, err)
	c := New(s, download.NewManager(client), client, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func coreJar() maven.Artifact {
	return maven.Artifact{GroupID: repoID, ArtifactID: testutil.SampleCore, Version: testutil.SampleVersion, Extension: maven.ExtensionJar}
}

func TestGet_ArtifactsAndMetadata(t *testing.T) {
	repo := testutil.NewSampleRepository(t)
	c, _ := newConnector(t, repo.Base, WithConcurrency(2))
	local := t.TempDir()

	jarDest := filepath.Join(local, "core.jar")
	pomDest := filepath.Join(local, "core.pom")
	docsDest := filepath.Join(local, "html.txt")
	mdDest := filepath.Join(local, "maven-metadata.xml")

	artifacts := []*ArtifactDownload{
		{Artifact: coreJar(), Dest: jarDest},
		{Artifact: coreJar().WithExtension(maven.ExtensionPom), Dest: pomDest},
		{Artifact: maven.Artifact{GroupID: repoID, ArtifactID: testutil.SampleCore, Version: testutil.SampleVersion, Classifier: "docs$html", Extension: "txt"}, Dest: docsDest},
	}
	metadata := []*MetadataDownload{
		{Metadata: maven.Metadata{GroupID: repoID, ArtifactID: testutil.SampleUtil}, Dest: mdDest},
	}

	require.NoError(t, c.Get(context.Background(), artifacts, metadata))
	for _, a := range artifacts {
		assert.NoError(t, a.Err, a.Artifact.String())
	}
	assert.NoError(t, metadata[0].Err)

	data, err := os.ReadFile(jarDest)
	require.NoError(t, err)
	assert.Equal(t, repo.CoreJar, data)

	sha, err := os.ReadFile(jarDest + ".sha256")
	require.NoError(t, err)
	assert.Equal(t, repo.CoreSHA256, string(sha))
	md5, err := os.ReadFile(jarDest + ".md5")
	require.NoError(t, err)
	assert.Equal(t, repo.CoreMD5, string(md5))

	pom, err := os.ReadFile(pomDest)
	require.NoError(t, err)
	assert.Contains(t, string(pom), "<artifactId>org.example.core</artifactId>")
	assert.NoFileExists(t, pomDest+".sha256")

	docs, err := os.ReadFile(docsDest)
	require.NoError(t, err)
	assert.Equal(t, testutil.SampleDocsText, string(docs))

	md, err := os.ReadFile(mdDest)
	require.NoError(t, err)
	assert.Contains(t, string(md), "<latest>2.0.0</latest>")
}

func TestGet_PerRequestFailures(t *testing.T) {
	repo := testutil.NewSampleRepository(t)
	c, _ := newConnector(t, repo.Base)
	local := t.TempDir()

	missing := &ArtifactDownload{Artifact: maven.Artifact{GroupID: repoID, ArtifactID: "org.unknown", Version: "1.0.0", Extension: maven.ExtensionJar}, Dest: filepath.Join(local, "unknown.jar")}
	gone := &ArtifactDownload{Artifact: maven.Artifact{GroupID: repoID, ArtifactID: testutil.SampleGone, Version: "1.0.0", Extension: maven.ExtensionJar}, Dest: filepath.Join(local, "gone.jar")}
	unsupported := &ArtifactDownload{Artifact: coreJar().WithExtension("zip"), Dest: filepath.Join(local, "core.zip")}
	noDest := &ArtifactDownload{Artifact: coreJar()}
	good := &ArtifactDownload{Artifact: coreJar(), Dest: filepath.Join(local, "core.jar")}
	mdMissing := &MetadataDownload{Metadata: maven.Metadata{GroupID: repoID, ArtifactID: "org.unknown"}, Dest: filepath.Join(local, "md.xml")}

	err := c.Get(context.Background(), []*ArtifactDownload{missing, gone, unsupported, noDest, good}, []*MetadataDownload{mdMissing})
	require.NoError(t, err)

	assert.True(t, stderrors.Is(missing.Err, errors.ErrNotFound), "%v", missing.Err)
	assert.True(t, stderrors.Is(gone.Err, errors.ErrNotFound), "%v", gone.Err)
	assert.True(t, stderrors.Is(unsupported.Err, errors.ErrNotFound), "%v", unsupported.Err)
	assert.True(t, stderrors.Is(noDest.Err, errors.ErrInvalidPath), "%v", noDest.Err)
	assert.True(t, stderrors.Is(mdMissing.Err, errors.ErrNotFound), "%v", mdMissing.Err)
	assert.NoError(t, good.Err)
	assert.NoFileExists(t, missing.Dest)
	assert.FileExists(t, good.Dest)
}

func TestGet_ChecksumMismatch(t *testing.T) {
	jar := testutil.BundleJar(t, testutil.Manifest([2]string{"Bundle-SymbolicName", "org.bad"}))
	srv := testutil.NewTestServer(t, map[string][]byte{
		"/repo/artifacts.xml": testutil.ArtifactsXML(testutil.Artifact{ID: "org.bad", Version: "1.0.0", Properties: map[string]string{
			"download.checksum.sha-256": "0000000000000000000000000000000000000000000000000000000000000000",
		}}),
		"/repo/plugins/org.bad_1.0.0.jar": jar,
	})
	c, _ := newConnector(t, srv.URL+"/repo")
	dest := filepath.Join(t.TempDir(), "bad.jar")

	req := &ArtifactDownload{Artifact: maven.Artifact{GroupID: repoID, ArtifactID: "org.bad", Version: "1.0.0", Extension: maven.ExtensionJar}, Dest: dest}
	require.NoError(t, c.Get(context.Background(), []*ArtifactDownload{req}, nil))

	assert.True(t, stderrors.Is(req.Err, errors.ErrChecksumMismatch), "%v", req.Err)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".sha256")
}

func TestGet_Cancelled(t *testing.T) {
	repo := testutil.NewSampleRepository(t)
	c, _ := newConnector(t, repo.Base)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := &ArtifactDownload{Artifact: coreJar(), Dest: filepath.Join(t.TempDir(), "core.jar")}
	err := c.Get(ctx, []*ArtifactDownload{req}, nil)
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.True(t, stderrors.Is(req.Err, context.Canceled))
	assert.Equal(t, 0, repo.Hits("/repo/artifacts.xml"))
}

func TestGet_ItemsHandedToManager(t *testing.T) {
	repo := testutil.NewSampleRepository(t)
	client := fetch.NewClient(5 * time.Second)
	s, err := layout.NewSession(p2.NewRegistry(client), repoID, repo.Base, layout.WithScratchRoot(t.TempDir()))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	mgr := mock_download.NewMockManager(ctrl)
	c := New(s, mgr, client, WithConcurrency(3))
	defer func() { _ = c.Close() }()
	dest := filepath.Join(t.TempDir(), "core.jar")

	gomock.InOrder(
		mgr.EXPECT().FetchAll(gomock.Any(), gomock.Any(), download.Options{Concurrency: 3}).
			DoAndReturn(func(_ context.Context, items []download.Item, _ download.Options) ([]download.Result, error) {
				require.Len(t, items, 1)
				assert.Equal(t, dest, items[0].Dest)
				assert.Equal(t, coreJar().String(), items[0].ID)
				assert.ElementsMatch(t, []download.Checksum{
					{Algorithm: maven.AlgorithmMD5, Value: repo.CoreMD5},
					{Algorithm: maven.AlgorithmSHA256, Value: repo.CoreSHA256},
				}, items[0].Checksums)
				return []download.Result{{Item: items[0], Path: dest}}, nil
			}),
		mgr.EXPECT().FetchAll(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, items []download.Item, _ download.Options) ([]download.Result, error) {
				require.Len(t, items, 2)
				dests := []string{items[0].Dest, items[1].Dest}
				assert.ElementsMatch(t, []string{dest + ".md5", dest + ".sha256"}, dests)
				return []download.Result{
					{Item: items[0]},
					{Item: items[1], Err: errors.ErrTransfer},
				}, nil
			}),
	)

	req := &ArtifactDownload{Artifact: coreJar(), Dest: dest}
	require.NoError(t, c.Get(context.Background(), []*ArtifactDownload{req}, nil))
	assert.True(t, stderrors.Is(req.Err, errors.ErrTransfer))
}

func TestPut_NoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	mgr := mock_download.NewMockManager(ctrl)
	s, err := layout.NewSession(p2.NewRegistry(fetch.NewClient(time.Second)), repoID, "${unset}", layout.WithScratchRoot(t.TempDir()))
	require.NoError(t, err)
	c := New(s, mgr, fetch.NewClient(time.Second))

	err = c.Put(context.Background(), []*ArtifactUpload{{Artifact: coreJar(), Source: "/tmp/x.jar"}}, nil)
	assert.NoError(t, err)
}

func TestClose(t *testing.T) {
	repo := testutil.NewSampleRepository(t)
	c, s := newConnector(t, repo.Base)

	req := &ArtifactDownload{Artifact: coreJar(), Dest: filepath.Join(t.TempDir(), "core.jar")}
	require.NoError(t, c.Get(context.Background(), []*ArtifactDownload{req}, nil))
	require.NoError(t, req.Err)
	scratch := s.ScratchDir()
	require.DirExists(t, scratch)

	require.NoError(t, c.Close())
	assert.NoDirExists(t, scratch)
	assert.FileExists(t, req.Dest)
	assert.NoError(t, c.Close())

	err := c.Get(context.Background(), []*ArtifactDownload{req}, nil)
	assert.True(t, stderrors.Is(err, errors.ErrClosed))
	err = c.Put(context.Background(), nil, nil)
	assert.True(t, stderrors.Is(err, errors.ErrClosed))
}
