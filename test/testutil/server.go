// Package testutil builds in-memory p2 repositories for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/mholt/archives"
)

// TestServer serves a fixed set of files and counts requests per path.
type TestServer struct {
	*httptest.Server

	mu     sync.Mutex
	files  map[string][]byte
	hits   map[string]int
	before func(path string)
}

// NewTestServer starts a server for the given path to content map.
// Paths are absolute URL paths, e.g. "/repo/artifacts.xml".
func NewTestServer(t *testing.T, files map[string][]byte) *TestServer {
	t.Helper()
	ts := &TestServer{files: map[string][]byte{}, hits: map[string]int{}}
	for p, data := range files {
		ts.files[p] = data
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.serve))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *TestServer) serve(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	ts.hits[r.URL.Path]++
	data, ok := ts.files[r.URL.Path]
	before := ts.before
	ts.mu.Unlock()

	if before != nil {
		before(r.URL.Path)
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Put adds or replaces a file.
func (ts *TestServer) Put(path string, data []byte) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.files[path] = data
}

// OnRequest installs a hook run before each response, outside the server lock.
func (ts *TestServer) OnRequest(fn func(path string)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.before = fn
}

// Hits reports how many requests were made for path.
func (ts *TestServer) Hits(path string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.hits[path]
}

// Artifact describes one <artifact> element of an artifacts.xml fixture.
type Artifact struct {
	ID         string
	Version    string
	Classifier string // defaults to osgi.bundle
	Properties map[string]string
	Processing bool
}

// ArtifactsXML renders an artifacts.xml document.
func ArtifactsXML(artifacts ...Artifact) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version='1.0' encoding='UTF-8'?>` + "\n")
	b.WriteString(`<?artifactRepository version='1.1.0'?>` + "\n")
	b.WriteString(`<repository name='test' type='org.eclipse.equinox.p2.artifact.repository.simpleRepository' version='1'>` + "\n")
	fmt.Fprintf(&b, "  <artifacts size='%d'>\n", len(artifacts))
	for _, a := range artifacts {
		classifier := a.Classifier
		if classifier == "" {
			classifier = "osgi.bundle"
		}
		fmt.Fprintf(&b, "    <artifact classifier='%s' id='%s' version='%s'>\n", classifier, a.ID, a.Version)
		if a.Processing {
			b.WriteString("      <processing size='1'><step id='org.eclipse.equinox.p2.processing.Pack200Unpacker' required='true'/></processing>\n")
		}
		keys := make([]string, 0, len(a.Properties))
		for k := range a.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "      <properties size='%d'>\n", len(keys))
		for _, k := range keys {
			fmt.Fprintf(&b, "        <property name='%s' value='%s'/>\n", k, a.Properties[k])
		}
		b.WriteString("      </properties>\n")
		b.WriteString("    </artifact>\n")
	}
	b.WriteString("  </artifacts>\n</repository>\n")
	return []byte(b.String())
}

// CompositeXML renders a compositeArtifacts.xml document.
func CompositeXML(children ...string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version='1.0' encoding='UTF-8'?>` + "\n")
	b.WriteString(`<?compositeArtifactRepository version='1.0.0'?>` + "\n")
	b.WriteString(`<repository name='composite' type='org.eclipse.equinox.internal.p2.artifact.repository.CompositeArtifactRepository' version='1.0.0'>` + "\n")
	fmt.Fprintf(&b, "  <children size='%d'>\n", len(children))
	for _, c := range children {
		fmt.Fprintf(&b, "    <child location='%s'/>\n", c)
	}
	b.WriteString("  </children>\n</repository>\n")
	return []byte(b.String())
}

// Entry is one file inside a zip fixture.
type Entry struct {
	Name string
	Data []byte
}

// ZipBytes builds a zip archive from entries, in order.
func ZipBytes(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// XZBytes compresses data with xz.
func XZBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w, err := archives.Xz{}.OpenWriter(buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

// Manifest renders MANIFEST.MF main attributes in the given order.
// Long values are folded at 72 bytes like the jar tool does.
func Manifest(headers ...[2]string) []byte {
	var b strings.Builder
	b.WriteString("Manifest-Version: 1.0\r\n")
	for _, h := range headers {
		line := h[0] + ": " + h[1]
		for len(line) > 72 {
			b.WriteString(line[:72] + "\r\n")
			line = " " + line[72:]
		}
		b.WriteString(line + "\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// BundleJar builds a bundle jar with the manifest first, then the extra entries.
func BundleJar(t *testing.T, manifest []byte, extra ...Entry) []byte {
	t.Helper()
	entries := append([]Entry{{Name: "META-INF/MANIFEST.MF", Data: manifest}}, extra...)
	return ZipBytes(t, entries...)
}

// WriteFile writes data under dir and returns the absolute path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// SetupTestConfig writes a config file registering one repository at repoURL.
func SetupTestConfig(t *testing.T, id, repoURL string) string {
	t.Helper()
	tempDir := t.TempDir()
	content := fmt.Sprintf(`repositories:
  - id: %s
    url: %s
    enabled: true
settings:
  scratch_dir: %s
  log_level: debug
  max_concurrent: 2
`, id, repoURL, filepath.Join(tempDir, "scratch"))
	return WriteFile(t, tempDir, "config.yaml", []byte(content))
}
