package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/glorpus-work/p2maven/pkg/layout"
	"github.com/glorpus-work/p2maven/pkg/maven"
	"github.com/go-chi/chi/v5"
)

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeXML  = "text/xml; charset=utf-8"
	contentTypeJar  = "application/java-archive"
	contentTypeData = "application/octet-stream"
)

// ListHandler writes one "id<TAB>group<TAB>location" line per repository.
func (s *Server) ListHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", contentTypeText)
	for _, id := range s.order {
		sess := s.sessions[id]
		location := "-"
		if repo := sess.Repository(); repo != nil {
			location = repo.Location().String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, sess.GroupID(), location)
	}
}

// BundlesHandler writes the flattened bundle list as id:version lines.
func (s *Server) BundlesHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(chi.URLParam(r, "repo"))
	if err != nil {
		writeError(w, err)
		return
	}
	bundles, err := sess.Bundles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeText)
	for _, b := range bundles {
		fmt.Fprintln(w, b.String())
	}
}

// FileHandler serves metadata, artifacts and their checksum side-files.
func (s *Server) FileHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(chi.URLParam(r, "repo"))
	if err != nil {
		writeError(w, err)
		return
	}
	rest, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	req, ok := parseRequestPath(rest)
	if !ok || req.groupID() != sess.GroupID() {
		http.NotFound(w, r)
		return
	}

	var u *url.URL
	var contentType string
	if req.metadata != nil {
		u, err = sess.LocateMetadata(r.Context(), *req.metadata)
		contentType = contentTypeXML
	} else {
		u, err = sess.Locate(r.Context(), *req.artifact)
		contentType = artifactContentType(req.artifact.Extension)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if u == nil || layout.IsPlaceholder(u) {
		http.NotFound(w, r)
		return
	}

	if req.checksum == "" {
		s.stream(w, r, u, contentType)
		return
	}
	if req.artifact != nil {
		side, ok := s.advertisedChecksum(w, r, sess, *req.artifact, req.checksum)
		if !ok {
			return
		}
		if side != nil {
			s.stream(w, r, side, contentTypeText)
			return
		}
		// Binaries only republish digests the repository declares.
		if req.artifact.Extension != maven.ExtensionPom {
			http.NotFound(w, r)
			return
		}
	}
	s.digest(w, r, u, req.checksum)
}

// advertisedChecksum finds a side-file the session materialized for ext.
// A false return means an error response was already written.
func (s *Server) advertisedChecksum(w http.ResponseWriter, r *http.Request, sess Session, a maven.Artifact, ext string) (*url.URL, bool) {
	sums, err := sess.Checksums(r.Context(), a)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	for _, sum := range sums {
		if maven.ChecksumExtension(sum.Algorithm) == ext {
			return sum.Location, true
		}
	}
	return nil, true
}

// stream copies the located resource into the response.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, u *url.URL, contentType string) {
	rc, ok, err := s.opener.Open(r.Context(), u)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", contentType)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("Response interrupted", logger.Fields{"url": u.String(), "error": err.Error()})
	}
}

// digest computes the checksum of a synthesized POM or metadata document.
func (s *Server) digest(w http.ResponseWriter, r *http.Request, u *url.URL, ext string) {
	data, ok, err := fetch.ReadAll(r.Context(), s.opener, u)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	sum, ok := maven.DigestBytes(data, ext)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentTypeText)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, bytes.NewReader([]byte(sum)))
}

func artifactContentType(ext string) string {
	switch ext {
	case maven.ExtensionJar:
		return contentTypeJar
	case maven.ExtensionPom, "xml":
		return contentTypeXML
	case "txt":
		return contentTypeText
	default:
		return contentTypeData
	}
}

// fileRequest is a repository-relative path split into what it addresses.
type fileRequest struct {
	group    []string
	artifact *maven.Artifact
	metadata *maven.Metadata
	checksum string // side-file extension, e.g. "sha1"
}

func (f fileRequest) groupID() string {
	return strings.Join(f.group, ".")
}

// parseRequestPath splits group/path/artifactId/version/file or
// group/path/artifactId/maven-metadata.xml, each optionally followed by a
// checksum extension.
func parseRequestPath(p string) (fileRequest, bool) {
	p = path.Clean("/" + p)
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	n := len(segments)
	if n < 3 {
		return fileRequest{}, false
	}

	var req fileRequest
	name := segments[n-1]
	if ext := path.Ext(name); ext != "" && maven.IsChecksumExtension(ext[1:]) {
		req.checksum = ext[1:]
		name = strings.TrimSuffix(name, ext)
	}

	if name == maven.MetadataFileName {
		req.group = segments[:n-2]
		req.metadata = &maven.Metadata{GroupID: req.groupID(), ArtifactID: segments[n-2]}
		return req, true
	}

	if n < 4 {
		return fileRequest{}, false
	}
	artifactID, version := segments[n-3], segments[n-2]
	classifier, extension, ok := maven.ParseFileName(artifactID, version, name)
	if !ok {
		return fileRequest{}, false
	}
	req.group = segments[:n-3]
	req.artifact = &maven.Artifact{
		GroupID:    req.groupID(),
		ArtifactID: artifactID,
		Version:    version,
		Classifier: classifier,
		Extension:  extension,
	}
	return req, true
}
