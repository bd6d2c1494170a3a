package p2

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	mock_fetch "github.com/glorpus-work/p2maven/pkg/fetch/mocks"
	"github.com/glorpus-work/p2maven/test/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var sampleArtifacts = []testutil.Artifact{
	{ID: "org.example.core", Version: "1.0.0", Properties: map[string]string{"download.checksum.sha-256": "abc", "download.size": "10"}},
	{ID: "org.example.core", Version: "1.0.0", Processing: true},
	{ID: "org.example.feature", Version: "1.0.0", Classifier: "org.eclipse.update.feature"},
	{ID: "org.example.ui", Version: "2.1.0.v2024"},
}

// bundleKeys projects bundles onto comparable id:version pairs.
func bundleKeys(bundles []*Bundle) []string {
	out := make([]string, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, b.String())
	}
	return out
}

func newRegistry() *Registry {
	return NewRegistry(fetch.NewClient(5 * time.Second))
}

func resolveAt(t *testing.T, reg *Registry, rawURL string) []*Bundle {
	t.Helper()
	repo, err := reg.Lookup(rawURL)
	require.NoError(t, err)
	bundles, err := repo.Bundles(context.Background())
	require.NoError(t, err)
	assert.True(t, repo.Resolved())
	return bundles
}

func TestBundles_FormatFallback(t *testing.T) {
	xmlDoc := testutil.ArtifactsXML(sampleArtifacts...)
	expect := []string{"org.example.core:1.0.0", "org.example.ui:2.1.0.v2024"}

	tests := []struct {
		name  string
		files func(t *testing.T) map[string][]byte
	}{
		{
			name:  "plain xml",
			files: func(*testing.T) map[string][]byte { return map[string][]byte{"/repo/artifacts.xml": xmlDoc} },
		},
		{
			name: "xz only",
			files: func(t *testing.T) map[string][]byte {
				return map[string][]byte{"/repo/artifacts.xml.xz": testutil.XZBytes(t, xmlDoc)}
			},
		},
		{
			name: "jar only",
			files: func(t *testing.T) map[string][]byte {
				jar := testutil.ZipBytes(t,
					testutil.Entry{Name: "META-INF/MANIFEST.MF", Data: []byte("Manifest-Version: 1.0\r\n\r\n")},
					testutil.Entry{Name: "artifacts.xml", Data: xmlDoc},
				)
				return map[string][]byte{"/repo/artifacts.jar": jar}
			},
		},
		{
			name: "plain wins over jar",
			files: func(t *testing.T) map[string][]byte {
				return map[string][]byte{
					"/repo/artifacts.xml": xmlDoc,
					"/repo/artifacts.jar": testutil.ZipBytes(t, testutil.Entry{Name: "artifacts.xml", Data: []byte("broken")}),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewTestServer(t, tt.files(t))
			bundles := resolveAt(t, newRegistry(), srv.URL+"/repo")

			if diff := cmp.Diff(expect, bundleKeys(bundles)); diff != "" {
				t.Errorf("bundles mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, "abc", bundles[0].Properties["download.checksum.sha-256"])
			assert.Equal(t, srv.URL+"/repo/", bundles[0].Location.String())
		})
	}
}

func TestBundles_ProcessingExcluded(t *testing.T) {
	srv := testutil.NewTestServer(t, map[string][]byte{
		"/repo/artifacts.xml": testutil.ArtifactsXML(
			testutil.Artifact{ID: "a", Version: "1.0.0", Processing: true, Properties: map[string]string{"format": "packed"}},
			testutil.Artifact{ID: "a", Version: "1.0.0"},
		),
	})
	bundles := resolveAt(t, newRegistry(), srv.URL+"/repo/")
	require.Len(t, bundles, 1)
	assert.NotContains(t, bundles[0].Properties, "format")
}

func TestBundles_Composite(t *testing.T) {
	srv := testutil.NewTestServer(t, map[string][]byte{
		"/comp/compositeArtifacts.xml": testutil.CompositeXML("first", "../other/second/"),
		"/comp/artifacts.xml":          testutil.ArtifactsXML(testutil.Artifact{ID: "own", Version: "1.0.0"}),
		"/comp/first/artifacts.xml": testutil.ArtifactsXML(
			testutil.Artifact{ID: "a", Version: "1.0.0"},
			testutil.Artifact{ID: "b", Version: "1.0.0"},
		),
		"/other/second/artifacts.xml": testutil.ArtifactsXML(testutil.Artifact{ID: "a", Version: "1.0.0"}),
	})
	reg := newRegistry()
	bundles := resolveAt(t, reg, srv.URL+"/comp")

	want := []string{"a:1.0.0", "b:1.0.0", "a:1.0.0", "own:1.0.0"}
	if diff := cmp.Diff(want, bundleKeys(bundles)); diff != "" {
		t.Errorf("flattened bundles mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, srv.URL+"/comp/first/", bundles[0].Location.String())
	assert.Equal(t, srv.URL+"/other/second/", bundles[2].Location.String())

	// children are registered and already resolved
	child, err := reg.Lookup(srv.URL + "/comp/first")
	require.NoError(t, err)
	assert.True(t, child.Resolved())
	assert.Equal(t, 3, reg.Len())
}

func TestBundles_CompositeCycle(t *testing.T) {
	var buf bytes.Buffer
	logger.SetTestOutput(&buf)
	logger.InitLogger("debug", logger.FormatText)
	t.Cleanup(logger.UnsetTestOutput)

	srv := testutil.NewTestServer(t, map[string][]byte{
		"/a/compositeArtifacts.xml": testutil.CompositeXML("../b/"),
		"/b/compositeArtifacts.xml": testutil.CompositeXML("../a/", "../b/"),
		"/b/artifacts.xml":          testutil.ArtifactsXML(testutil.Artifact{ID: "x", Version: "1.0.0"}),
	})

	done := make(chan []*Bundle, 1)
	go func() {
		repo, err := newRegistry().Lookup(srv.URL + "/a/")
		if err != nil {
			done <- nil
			return
		}
		bundles, _ := repo.Bundles(context.Background())
		done <- bundles
	}()

	select {
	case bundles := <-done:
		assert.Equal(t, []string{"x:1.0.0"}, bundleKeys(bundles))
	case <-time.After(10 * time.Second):
		t.Fatal("composite cycle did not terminate")
	}
	assert.Contains(t, buf.String(), "Composite repository cycle")
}

func TestBundles_ConcurrentSingleFetch(t *testing.T) {
	srv := testutil.NewTestServer(t, map[string][]byte{
		"/repo/artifacts.xml": testutil.ArtifactsXML(sampleArtifacts...),
	})
	srv.OnRequest(func(string) { time.Sleep(50 * time.Millisecond) })
	reg := newRegistry()

	const callers = 16
	var wg sync.WaitGroup
	results := make([][]string, callers)
	repos := make([]*Repository, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo, err := reg.Lookup(srv.URL + "/repo")
			if err != nil {
				return
			}
			repos[i] = repo
			bundles, err := repo.Bundles(context.Background())
			if err == nil {
				results[i] = bundleKeys(bundles)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, srv.Hits("/repo/artifacts.xml"))
	assert.Equal(t, 1, srv.Hits("/repo/compositeArtifacts.xml"))
	for i := 1; i < callers; i++ {
		assert.Same(t, repos[0], repos[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Len(t, results[0], 2)
}

func TestBundles_Malformed(t *testing.T) {
	var buf bytes.Buffer
	logger.SetTestOutput(&buf)
	logger.InitLogger("debug", logger.FormatText)
	t.Cleanup(logger.UnsetTestOutput)

	tests := []struct {
		name  string
		files func(t *testing.T) map[string][]byte
		want  []string
	}{
		{
			name: "truncated artifacts",
			files: func(*testing.T) map[string][]byte {
				return map[string][]byte{"/repo/artifacts.xml": []byte("<repository><artifacts><artifact")}
			},
			want: []string{},
		},
		{
			name: "corrupt xz",
			files: func(*testing.T) map[string][]byte {
				return map[string][]byte{"/repo/artifacts.xml.xz": []byte("not xz at all")}
			},
			want: []string{},
		},
		{
			name: "empty jar",
			files: func(t *testing.T) map[string][]byte {
				return map[string][]byte{"/repo/artifacts.jar": testutil.ZipBytes(t)}
			},
			want: []string{},
		},
		{
			name: "malformed composite keeps own bundles",
			files: func(*testing.T) map[string][]byte {
				return map[string][]byte{
					"/repo/compositeArtifacts.xml": []byte("<<<"),
					"/repo/artifacts.xml":          testutil.ArtifactsXML(testutil.Artifact{ID: "a", Version: "1"}),
				}
			},
			want: []string{"a:1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			srv := testutil.NewTestServer(t, tt.files(t))
			bundles := resolveAt(t, newRegistry(), srv.URL+"/repo")
			assert.Equal(t, tt.want, bundleKeys(bundles))
			assert.Contains(t, buf.String(), "Ignoring malformed descriptor")
		})
	}
}

func TestBundles_Empty(t *testing.T) {
	srv := testutil.NewTestServer(t, nil)
	bundles := resolveAt(t, newRegistry(), srv.URL+"/nothing")
	assert.Empty(t, bundles)
	assert.NotNil(t, bundles)
	assert.Equal(t, 6, srv.Hits("/nothing/artifacts.xml")+srv.Hits("/nothing/artifacts.xml.xz")+srv.Hits("/nothing/artifacts.jar")+
		srv.Hits("/nothing/compositeArtifacts.xml")+srv.Hits("/nothing/compositeArtifacts.xml.xz")+srv.Hits("/nothing/compositeArtifacts.jar"))
}

func TestBundles_TransferErrorRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	opener := mock_fetch.NewMockOpener(ctrl)

	fail := true
	opener.EXPECT().Open(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *url.URL) (io.ReadCloser, bool, error) {
		if !strings.HasSuffix(u.Path, "/artifacts.xml") {
			return nil, false, nil
		}
		if fail {
			return nil, false, fmt.Errorf("GET %s: %w: connection reset", u, errors.ErrTransfer)
		}
		return io.NopCloser(bytes.NewReader(testutil.ArtifactsXML(testutil.Artifact{ID: "a", Version: "1.0.0"}))), true, nil
	}).AnyTimes()

	repo := NewRegistry(opener).Get(&url.URL{Scheme: "https", Host: "p2.example.org", Path: "/release"})
	_, err := repo.Bundles(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrTransfer))
	assert.False(t, repo.Resolved())

	fail = false
	bundles, err := repo.Bundles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1.0.0"}, bundleKeys(bundles))
	assert.True(t, repo.Resolved())
}

func TestBundles_ReturnsCopy(t *testing.T) {
	srv := testutil.NewTestServer(t, map[string][]byte{
		"/repo/artifacts.xml": testutil.ArtifactsXML(testutil.Artifact{ID: "a", Version: "1"}),
	})
	repo, err := newRegistry().Lookup(srv.URL + "/repo")
	require.NoError(t, err)
	first, err := repo.Bundles(context.Background())
	require.NoError(t, err)
	first[0] = nil
	second, err := repo.Bundles(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, second[0])
}

func TestRegistry_LocalRepository(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "artifacts.xml", testutil.ArtifactsXML(testutil.Artifact{ID: "local", Version: "0.1.0"}))

	reg := newRegistry()
	bundles := resolveAt(t, reg, dir)
	require.Len(t, bundles, 1)
	assert.Equal(t, "file", bundles[0].URI("").Scheme)
	assert.True(t, strings.HasSuffix(bundles[0].URI("").Path, "/plugins/local_0.1.0.jar"))
}

func TestBundles_CancelledCallerDoesNotFailOthers(t *testing.T) {
	srv := testutil.NewTestServer(t, map[string][]byte{
		"/repo/artifacts.xml": testutil.ArtifactsXML(sampleArtifacts...),
	})
	srv.OnRequest(func(p string) {
		if strings.HasSuffix(p, "/compositeArtifacts.xml") {
			time.Sleep(200 * time.Millisecond)
		}
	})
	repo, err := newRegistry().Lookup(srv.URL + "/repo")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := repo.Bundles(ctx)
		first <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type result struct {
		bundles []*Bundle
		err     error
	}
	second := make(chan result, 1)
	go func() {
		bundles, err := repo.Bundles(context.Background())
		second <- result{bundles, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-first, context.Canceled)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, []string{"org.example.core:1.0.0", "org.example.ui:2.1.0.v2024"}, bundleKeys(res.bundles))
	assert.True(t, repo.Resolved())
	assert.Equal(t, 1, srv.Hits("/repo/artifacts.xml"))
	assert.Equal(t, 1, srv.Hits("/repo/compositeArtifacts.xml"))
}

func TestBundles_ChildSharedWithParent(t *testing.T) {
	srv := testutil.NewTestServer(t, map[string][]byte{
		"/p/compositeArtifacts.xml": testutil.CompositeXML("../c/"),
		"/c/artifacts.xml":          testutil.ArtifactsXML(testutil.Artifact{ID: "a", Version: "1.0.0"}),
	})
	srv.OnRequest(func(string) { time.Sleep(100 * time.Millisecond) })
	reg := newRegistry()
	parent, err := reg.Lookup(srv.URL + "/p")
	require.NoError(t, err)
	child, err := reg.Lookup(srv.URL + "/c")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]string, 2)
	for i, repo := range []*Repository{parent, child} {
		wg.Add(1)
		go func(i int, repo *Repository) {
			defer wg.Done()
			bundles, err := repo.Bundles(context.Background())
			if err == nil {
				results[i] = bundleKeys(bundles)
			}
		}(i, repo)
	}
	wg.Wait()

	assert.Equal(t, []string{"a:1.0.0"}, results[0])
	assert.Equal(t, []string{"a:1.0.0"}, results[1])
	assert.Equal(t, 1, srv.Hits("/c/artifacts.xml"))
	assert.Equal(t, 1, srv.Hits("/c/compositeArtifacts.xml"))
	assert.Equal(t, 1, srv.Hits("/c/compositeArtifacts.jar"))
}

func TestBundles_CycleMembersKeepFirstEntryView(t *testing.T) {
	srv := testutil.NewTestServer(t, map[string][]byte{
		"/a/compositeArtifacts.xml": testutil.CompositeXML("../b/"),
		"/a/artifacts.xml":          testutil.ArtifactsXML(testutil.Artifact{ID: "y", Version: "1.0.0"}),
		"/b/compositeArtifacts.xml": testutil.CompositeXML("../a/"),
		"/b/artifacts.xml":          testutil.ArtifactsXML(testutil.Artifact{ID: "x", Version: "1.0.0"}),
	})

	reg := newRegistry()
	assert.Equal(t, []string{"x:1.0.0", "y:1.0.0"}, bundleKeys(resolveAt(t, reg, srv.URL+"/a")))
	// b was resolved while a was on the chain, so the edge back to a is cut.
	assert.Equal(t, []string{"x:1.0.0"}, bundleKeys(resolveAt(t, reg, srv.URL+"/b")))

	// Entering the cycle at b cuts the other edge instead.
	assert.Equal(t, []string{"y:1.0.0", "x:1.0.0"}, bundleKeys(resolveAt(t, newRegistry(), srv.URL+"/b")))
}
