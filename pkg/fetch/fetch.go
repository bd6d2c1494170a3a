// Package fetch opens remote and local locations: http(s) with manual redirect
// handling, file, and jar:<outer>!/<entry> addressing into zip archives.
package fetch

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/auth"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/mholt/archives"
)

const (
	// DefaultUserAgent is sent with every HTTP request unless overridden.
	DefaultUserAgent = "p2maven/1.0"
	// DefaultMaxRedirects bounds redirect chains; a longer chain is reported as absent.
	DefaultMaxRedirects = 20
)

// Client is the default Opener.
type Client struct {
	client       *http.Client
	userAgent    string
	scopes       *auth.Scopes
	maxRedirects int
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithAuth applies credentials to requests whose URL falls under one of the scopes.
func WithAuth(scopes *auth.Scopes) Option {
	return func(c *Client) { c.scopes = scopes }
}

// WithMaxRedirects overrides DefaultMaxRedirects.
func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// NewClient creates a new Client with the given transport timeout.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: timeout,
			// redirects are followed by openHTTP so that every hop is re-authenticated
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent:    DefaultUserAgent,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open implements Opener.
func (c *Client) Open(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	if u == nil {
		return nil, false, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return c.openHTTP(ctx, u)
	case "file", "":
		return openFile(u)
	case "jar":
		return c.openJar(ctx, u)
	default:
		return nil, false, fmt.Errorf("scheme %q of %s: %w", u.Scheme, u, errors.ErrUnsupported)
	}
}

func (c *Client) openHTTP(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	target := u
	for hop := 0; ; hop++ {
		if hop > c.maxRedirects {
			logger.Warn("Too many redirects, treating as absent", logger.Fields{"url": u.String(), "hops": hop - 1})
			return nil, false, nil
		}

		resp, err := c.doRequest(ctx, target)
		if err != nil {
			return nil, false, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return resp.Body, true, nil
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			location := resp.Header.Get("Location")
			drainAndClose(resp.Body)
			if location == "" {
				return nil, false, nil
			}
			next, err := target.Parse(location)
			if err != nil {
				logger.Debug("Unparsable redirect location", logger.Fields{"url": target.String(), "location": location})
				return nil, false, nil
			}
			logger.Debug("Following redirect", logger.Fields{"from": target.String(), "to": next.String(), "status": resp.StatusCode})
			target = next
		default:
			drainAndClose(resp.Body)
			logger.Debug("Resource absent", logger.Fields{"url": target.String(), "status": resp.StatusCode})
			return nil, false, nil
		}
	}
}

func (c *Client) doRequest(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if a := c.scopes.For(u); a != nil {
		if err := a.Apply(req); err != nil {
			return nil, errors.Wrapf(err, "failed to apply %s authentication", a.Type())
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w: %w", u, errors.ErrTransfer, err)
	}
	return resp, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

func openFile(u *url.URL) (io.ReadCloser, bool, error) {
	path, ok := LocalPath(u)
	if !ok {
		return nil, false, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open %s: %w: %w", path, errors.ErrTransfer, err)
	}
	if st, err := f.Stat(); err == nil && st.IsDir() {
		_ = f.Close()
		return nil, false, nil
	}
	return f, true, nil
}

// openJar serves jar:<outer>!/<entry>. Local outer archives are read in place;
// remote ones are buffered in memory first.
func (c *Client) openJar(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	outer, entry, err := SplitJarURL(u)
	if err != nil {
		return nil, false, err
	}

	var fsys fs.FS
	if path, ok := LocalPath(outer); ok {
		if _, err := os.Stat(path); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("stat %s: %w: %w", path, errors.ErrTransfer, err)
		}
		fsys, err = archives.FileSystem(ctx, path, nil)
		if err != nil {
			return nil, false, fmt.Errorf("open archive %s: %w: %w", path, errors.ErrTransfer, err)
		}
	} else {
		rc, ok, err := c.Open(ctx, outer)
		if err != nil || !ok {
			return nil, ok, err
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w: %w", outer, errors.ErrTransfer, err)
		}
		fsys = &archives.ArchiveFS{
			Stream:  io.NewSectionReader(bytes.NewReader(data), 0, int64(len(data))),
			Format:  archives.Zip{},
			Context: ctx,
		}
	}

	f, err := fsys.Open(entry)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open %s in %s: %w: %w", entry, outer, errors.ErrTransfer, err)
	}
	return f, true, nil
}

// ReadAll opens u and reads it fully.
func ReadAll(ctx context.Context, o Opener, u *url.URL) ([]byte, bool, error) {
	rc, ok, err := o.Open(ctx, u)
	if err != nil || !ok {
		return nil, ok, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w: %w", u, errors.ErrTransfer, err)
	}
	return data, true, nil
}

// FileURL returns the file: URL for a local path.
func FileURL(path string) *url.URL {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	return &url.URL{Scheme: "file", Path: slashed}
}

// LocalPath returns the filesystem path of a file: URL.
func LocalPath(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	if u.Scheme != "file" && u.Scheme != "" {
		return "", false
	}
	if u.Opaque != "" {
		return filepath.FromSlash(u.Opaque), true
	}
	if u.Path == "" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

// JarURL addresses entry inside the archive at outer.
func JarURL(outer *url.URL, entry string) *url.URL {
	return &url.URL{Scheme: "jar", Opaque: outer.String() + "!/" + strings.TrimPrefix(entry, "/")}
}

// SplitJarURL is the inverse of JarURL.
func SplitJarURL(u *url.URL) (*url.URL, string, error) {
	raw := u.Opaque
	if raw == "" {
		raw = strings.TrimPrefix(u.String(), "jar:")
	}
	idx := strings.LastIndex(raw, "!/")
	if idx < 0 {
		return nil, "", fmt.Errorf("jar url %s has no entry separator: %w", u, errors.ErrInvalidPath)
	}
	outer, err := url.Parse(raw[:idx])
	if err != nil {
		return nil, "", fmt.Errorf("jar url %s: %w: %w", u, errors.ErrInvalidPath, err)
	}
	entry := raw[idx+2:]
	if entry == "" || !fs.ValidPath(entry) {
		return nil, "", fmt.Errorf("jar url %s: bad entry %q: %w", u, entry, errors.ErrInvalidPath)
	}
	return outer, entry, nil
}
