package osgi

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/magiconair/properties"
	"github.com/mholt/archives"
)

// Well-known manifest headers.
const (
	HeaderBundleSymbolicName   = "Bundle-SymbolicName"
	HeaderBundleVersion        = "Bundle-Version"
	HeaderBundleName           = "Bundle-Name"
	HeaderBundleDescription    = "Bundle-Description"
	HeaderBundleLicense        = "Bundle-License"
	HeaderBundleVendor         = "Bundle-Vendor"
	HeaderBundleCopyright      = "Bundle-Copyright"
	HeaderBundleDocURL         = "Bundle-DocURL"
	HeaderBundleLocalization   = "Bundle-Localization"
	HeaderBundleClassPath      = "Bundle-ClassPath"
	HeaderRequireBundle        = "Require-Bundle"
	HeaderEclipseSourceRefs    = "Eclipse-SourceReferences"
	AttributeBundleVersion     = "bundle-version"
	DefaultBundleLocalization  = "OSGI-INF/l10n/bundle"
	manifestPath               = "META-INF/MANIFEST.MF"
	localizationFileExtension  = ".properties"
	localizationVariantDivider = "_"
)

// Manifest is a read-only view over a bundle jar's main manifest attributes,
// resolving %key values against the bundle's localization properties.
type Manifest struct {
	headers map[string]string
	l10n    *properties.Properties
}

// ReadManifest opens the jar at path and reads its manifest and the most
// specific localization resource available for locale. A jar without a
// manifest yields an error wrapping errors.ErrNotFound.
func ReadManifest(ctx context.Context, path, locale string) (*Manifest, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "stat bundle jar %s", path)
	}
	fsys, err := archives.FileSystem(ctx, path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open bundle jar %s", path)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	return ReadManifestFS(fsys, locale)
}

// ReadManifestFS is ReadManifest over an already opened archive.
func ReadManifestFS(fsys fs.FS, locale string) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, manifestPath)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", manifestPath, errors.ErrNotFound)
		}
		return nil, errors.Wrapf(err, "read %s", manifestPath)
	}
	headers, err := ParseManifest(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	m := &Manifest{headers: headers}
	m.l10n = loadLocalization(fsys, m.localizationBase(), locale)
	return m, nil
}

// ParseManifest reads the main section of a MANIFEST.MF. Header names are
// matched case-insensitively; continuation lines start with a single space.
func ParseManifest(r io.Reader) (map[string]string, error) {
	headers := map[string]string{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lastKey := ""
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break // end of main section
		}
		if line[0] == ' ' {
			if lastKey == "" {
				return nil, fmt.Errorf("continuation line without header: %w", errors.ErrMalformedDocument)
			}
			headers[lastKey] += line[1:]
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			return nil, fmt.Errorf("manifest line %q: %w", line, errors.ErrMalformedDocument)
		}
		lastKey = strings.ToLower(line[:idx])
		headers[lastKey] = strings.TrimPrefix(line[idx+1:], " ")
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	return headers, nil
}

func (m *Manifest) localizationBase() string {
	if base, ok := m.Raw(HeaderBundleLocalization); ok && strings.TrimSpace(base) != "" {
		return strings.TrimSpace(base)
	}
	return DefaultBundleLocalization
}

// LocaleVariants lists locale variants from most to least specific, ending
// with the default variant "". Both '-' and '_' separate variant parts.
func LocaleVariants(locale string) []string {
	var variants []string
	for locale != "" {
		variants = append(variants, locale)
		idx := strings.LastIndexAny(locale, "-_")
		if idx < 0 {
			break
		}
		locale = locale[:idx]
	}
	return append(variants, "")
}

func loadLocalization(fsys fs.FS, base, locale string) *properties.Properties {
	loader := &properties.Loader{Encoding: properties.ISO_8859_1, DisableExpansion: true}
	for _, variant := range LocaleVariants(locale) {
		name := base + localizationFileExtension
		if variant != "" {
			name = base + localizationVariantDivider + variant + localizationFileExtension
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			continue
		}
		props, err := loader.LoadBytes(data)
		if err != nil {
			logger.Warn("Unreadable bundle localization", logger.Fields{"resource": name, "error": err.Error()})
			continue
		}
		logger.Debug("Loaded bundle localization", logger.Fields{"resource": name})
		return props
	}
	return nil
}

// Raw returns the unlocalized header value.
func (m *Manifest) Raw(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.headers[strings.ToLower(name)]
	return v, ok
}

// Get returns the header value, localized when it is a %key reference.
// An unknown key resolves to the key itself.
func (m *Manifest) Get(name string) string {
	raw, ok := m.Raw(name)
	if !ok {
		return ""
	}
	if len(raw) > 1 && raw[0] == '%' {
		key := raw[1:]
		if m.l10n != nil {
			if v, found := m.l10n.Get(key); found {
				return v
			}
		}
		return key
	}
	return raw
}

// Clauses parses the named header into clauses; a missing header yields nil.
func (m *Manifest) Clauses(name string) []Clause {
	raw, ok := m.Raw(name)
	if !ok {
		return nil
	}
	return ParseHeader(raw)
}

// DefaultLocale derives a locale such as "de_CH" from LC_ALL, LC_MESSAGES or LANG.
func DefaultLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := NormalizeLocale(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// NormalizeLocale strips encoding and modifier suffixes from a POSIX locale.
// "C" and "POSIX" mean no locale.
func NormalizeLocale(v string) string {
	if idx := strings.IndexAny(v, ".@"); idx >= 0 {
		v = v[:idx]
	}
	switch v {
	case "C", "POSIX":
		return ""
	}
	return v
}
