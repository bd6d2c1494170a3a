package osgi

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	raw := "Manifest-Version: 1.0\r\n" +
		"Bundle-SymbolicName: org.example.core;singleton:=true\r\n" +
		"Require-Bundle: org.eclipse.core.runtime;bundle-version=\"[3.2.0,4.0\r\n" +
		" .0)\",org.junit\r\n" +
		"bundle-name: Example\r\n" +
		"\r\n" +
		"Name: org/example/Foo.class\r\n" +
		"SHA-256-Digest: abc\r\n"

	headers, err := ParseManifest(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "org.example.core;singleton:=true", headers["bundle-symbolicname"])
	assert.Equal(t, `org.eclipse.core.runtime;bundle-version="[3.2.0,4.0.0)",org.junit`, headers["require-bundle"])
	assert.Equal(t, "Example", headers["bundle-name"])
	assert.NotContains(t, headers, "name", "per-entry sections are ignored")
}

func TestParseManifest_Malformed(t *testing.T) {
	for _, raw := range []string{" leading continuation\r\n", "no colon here\r\n"} {
		_, err := ParseManifest(strings.NewReader(raw))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrMalformedDocument))
	}
}

func TestLocaleVariants(t *testing.T) {
	tests := []struct {
		locale string
		expect []string
	}{
		{"", []string{""}},
		{"en", []string{"en", ""}},
		{"de_CH", []string{"de_CH", "de", ""}},
		{"en-US-POSIX", []string{"en-US-POSIX", "en-US", "en", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.expect, LocaleVariants(tt.locale))
		})
	}
}

func writeBundle(t *testing.T, manifest []byte, extra ...testutil.Entry) string {
	t.Helper()
	return testutil.WriteFile(t, t.TempDir(), "bundle.jar", testutil.BundleJar(t, manifest, extra...))
}

func TestReadManifest_Localization(t *testing.T) {
	manifest := testutil.Manifest(
		[2]string{"Bundle-SymbolicName", "org.example.core"},
		[2]string{"Bundle-Name", "%bundleName"},
		[2]string{"Bundle-Vendor", "%providerName"},
		[2]string{"Bundle-Description", "%missingKey"},
		[2]string{"Bundle-Copyright", "%"},
		[2]string{"Bundle-DocURL", "https://example.org/docs"},
	)
	jar := writeBundle(t, manifest,
		testutil.Entry{Name: "OSGI-INF/l10n/bundle.properties", Data: []byte("bundleName=Example Core\nproviderName=Example Org\n")},
		testutil.Entry{Name: "OSGI-INF/l10n/bundle_de.properties", Data: []byte("bundleName=Beispielkern\n")},
	)

	tests := []struct {
		name   string
		locale string
		header string
		expect string
	}{
		{"default variant", "", HeaderBundleName, "Example Core"},
		{"language variant", "de", HeaderBundleName, "Beispielkern"},
		{"country falls back to language", "de_CH", HeaderBundleName, "Beispielkern"},
		{"only first existing resource is used", "de_CH", HeaderBundleVendor, "providerName"},
		{"unknown locale uses default", "fr_FR", HeaderBundleVendor, "Example Org"},
		{"missing key falls back to key", "", HeaderBundleDescription, "missingKey"},
		{"bare percent is raw", "", HeaderBundleCopyright, "%"},
		{"plain value is unchanged", "de", HeaderBundleDocURL, "https://example.org/docs"},
		{"absent header is empty", "", HeaderRequireBundle, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ReadManifest(context.Background(), jar, tt.locale)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, m.Get(tt.header))
		})
	}
}

func TestReadManifest_CustomLocalizationBase(t *testing.T) {
	manifest := testutil.Manifest(
		[2]string{"Bundle-Localization", "plugin"},
		[2]string{"Bundle-Name", "%name"},
	)
	jar := writeBundle(t, manifest,
		testutil.Entry{Name: "plugin.properties", Data: []byte("name=Caf\\u00e9 Plugin\n")},
	)

	m, err := ReadManifest(context.Background(), jar, "")
	require.NoError(t, err)
	assert.Equal(t, "Café Plugin", m.Get(HeaderBundleName))
}

func TestReadManifest_NoLocalization(t *testing.T) {
	jar := writeBundle(t, testutil.Manifest([2]string{"Bundle-Name", "%name"}))

	m, err := ReadManifest(context.Background(), jar, "en_US")
	require.NoError(t, err)
	assert.Equal(t, "name", m.Get(HeaderBundleName))
}

func TestReadManifest_Clauses(t *testing.T) {
	jar := writeBundle(t, testutil.Manifest(
		[2]string{"Bundle-ClassPath", ".,lib/a.jar"},
	))

	m, err := ReadManifest(context.Background(), jar, "")
	require.NoError(t, err)
	clauses := m.Clauses(HeaderBundleClassPath)
	require.Len(t, clauses, 2)
	assert.Equal(t, "lib/a.jar", clauses[1].Value())
	assert.Nil(t, m.Clauses(HeaderRequireBundle))
}

func TestReadManifest_MissingManifest(t *testing.T) {
	jar := testutil.WriteFile(t, t.TempDir(), "nomanifest.jar",
		testutil.ZipBytes(t, testutil.Entry{Name: "a.txt", Data: []byte("a")}))

	_, err := ReadManifest(context.Background(), jar, "")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestNormalizeLocale(t *testing.T) {
	assert.Equal(t, "de_CH", NormalizeLocale("de_CH.UTF-8"))
	assert.Equal(t, "sr_RS", NormalizeLocale("sr_RS@latin"))
	assert.Equal(t, "", NormalizeLocale("C"))
	assert.Equal(t, "", NormalizeLocale("POSIX.UTF-8"))
}
