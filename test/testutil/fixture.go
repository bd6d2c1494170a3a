package testutil

import (
	"crypto/md5" //nolint:gosec // fixture checksum
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

// Sample bundle coordinates served by NewSampleRepository.
const (
	SampleCore     = "org.example.core"
	SampleUtil     = "org.example.util"
	SampleOpt      = "org.example.opt"
	SampleGone     = "org.example.gone"
	SampleVersion  = "1.0.0.v20240101"
	SampleDocsText = "embedded documentation"
)

// SampleRepository describes the fixture repository.
type SampleRepository struct {
	*TestServer
	// Base is the repository URL without a trailing slash.
	Base string
	// CoreJar is the content of the core bundle jar.
	CoreJar []byte
	// CoreSHA256 and CoreMD5 are the declared (and correct) digests of CoreJar.
	CoreSHA256 string
	CoreMD5    string
}

// SampleCoreJar builds the core bundle: localized name, licensing headers,
// requirements on util and opt, and two embedded entries.
func SampleCoreJar(t *testing.T) []byte {
	t.Helper()
	manifest := Manifest(
		[2]string{"Bundle-ManifestVersion", "2"},
		[2]string{"Bundle-SymbolicName", SampleCore + ";singleton:=true"},
		[2]string{"Bundle-Version", SampleVersion},
		[2]string{"Bundle-Name", "%bundleName"},
		[2]string{"Bundle-Vendor", "%providerName"},
		[2]string{"Bundle-Description", "Core services"},
		[2]string{"Bundle-License", `EPL-2.0;link="https://www.eclipse.org/legal/epl-2.0/"`},
		[2]string{"Bundle-Copyright", "Copyright (c) 2024 Example"},
		[2]string{"Bundle-DocURL", "https://example.org/core"},
		[2]string{"Eclipse-SourceReferences", `scm:git:https://git.example.org/core.git;path="bundles/core",scm:git:https://git.example.org/mirror.git`},
		[2]string{"Require-Bundle", SampleUtil + `;bundle-version="[1.0.0,2.0.0)",org.missing;bundle-version="1.0.0",` + SampleOpt + ";resolution:=optional"},
		[2]string{"Bundle-ClassPath", ".,lib/a.jar,lib/nested/b.jar"},
	)
	return BundleJar(t, manifest,
		Entry{Name: "OSGI-INF/l10n/bundle.properties", Data: []byte("bundleName=Example Core\nproviderName=Example Org\n")},
		Entry{Name: "OSGI-INF/l10n/bundle_de.properties", Data: []byte("bundleName=Beispielkern\n")},
		Entry{Name: "docs/html.txt", Data: []byte(SampleDocsText)},
		Entry{Name: "lib/a.jar", Data: ZipBytes(t, Entry{Name: "a/A.class", Data: []byte{0xCA, 0xFE}})},
	)
}

// NewSampleRepository serves a simple repository at <server>/repo:
//
//	org.example.core 1.0.0.v20240101  jar present, sha-256 + md5 declared
//	org.example.util 0.9.0, 1.5.0, 2.0.0
//	org.example.opt  1.0.0
//	org.example.gone 1.0.0            listed, jar missing
func NewSampleRepository(t *testing.T) *SampleRepository {
	t.Helper()
	core := SampleCoreJar(t)
	sum := sha256.Sum256(core)
	md := md5.Sum(core) //nolint:gosec // fixture checksum
	s := &SampleRepository{
		CoreJar:    core,
		CoreSHA256: hex.EncodeToString(sum[:]),
		CoreMD5:    hex.EncodeToString(md[:]),
	}

	artifacts := ArtifactsXML(
		Artifact{ID: SampleCore, Version: SampleVersion, Properties: map[string]string{
			"download.checksum.sha-256": s.CoreSHA256,
			"download.checksum.md5":     s.CoreMD5,
			"download.size":             "1",
		}},
		Artifact{ID: SampleUtil, Version: "0.9.0"},
		Artifact{ID: SampleUtil, Version: "1.5.0"},
		Artifact{ID: SampleUtil, Version: "2.0.0"},
		Artifact{ID: SampleOpt, Version: "1.0.0"},
		Artifact{ID: SampleGone, Version: "1.0.0"},
	)
	util := BundleJar(t, Manifest([2]string{"Bundle-SymbolicName", SampleUtil}))
	opt := BundleJar(t, Manifest([2]string{"Bundle-SymbolicName", SampleOpt}))
	s.TestServer = NewTestServer(t, map[string][]byte{
		"/repo/artifacts.xml":                 artifacts,
		PluginPath(SampleCore, SampleVersion): core,
		PluginPath(SampleUtil, "1.5.0"):       util,
		PluginPath(SampleOpt, "1.0.0"):        opt,
	})
	s.Base = s.URL + "/repo"
	return s
}

// PluginPath is the server path of a bundle jar.
func PluginPath(id, version string) string {
	return "/repo/plugins/" + id + "_" + version + ".jar"
}
