package maven

import (
	"crypto/md5"  //nolint:gosec // legacy repository checksum
	"crypto/sha1" //nolint:gosec // legacy repository checksum
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"
)

// Checksum algorithm names as p2 spells them in download.checksum.* properties.
const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA1   = "sha-1"
	AlgorithmSHA256 = "sha-256"
	AlgorithmSHA384 = "sha-384"
	AlgorithmSHA512 = "sha-512"
)

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// ChecksumExtension is the side-file suffix for an algorithm: lower case with
// hyphens removed, so sha-256 becomes sha256.
func ChecksumExtension(algorithm string) string {
	return strings.ToLower(strings.ReplaceAll(algorithm, "-", ""))
}

// NewHash returns a hash for the algorithm, accepting both "sha-256" and "sha256".
func NewHash(algorithm string) (hash.Hash, bool) {
	fn, ok := hashes[ChecksumExtension(algorithm)]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// IsChecksumExtension reports whether ext names a supported side-file suffix.
func IsChecksumExtension(ext string) bool {
	_, ok := hashes[ext]
	return ok
}

// Digest hashes r and returns the lower-case hex digest.
func Digest(r io.Reader, algorithm string) (string, bool, error) {
	h, ok := NewHash(algorithm)
	if !ok {
		return "", false, nil
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", true, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}

// DigestFile is Digest over a file.
func DigestFile(path, algorithm string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = f.Close() }()
	return Digest(f, algorithm)
}

// DigestBytes is Digest over an in-memory document.
func DigestBytes(data []byte, algorithm string) (string, bool) {
	h, ok := NewHash(algorithm)
	if !ok {
		return "", false
	}
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), true
}

// EqualChecksum compares a declared value with a computed one, ignoring case
// and surrounding whitespace.
func EqualChecksum(declared, computed string) bool {
	return strings.EqualFold(strings.TrimSpace(declared), strings.TrimSpace(computed))
}
