// Package hasher computes content hashes for files: a registry of streaming
// digest algorithms plus a Computer that reads files through a bounded
// buffer with retry, backoff, and mutation detection.
package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Hasher wraps incremental hashing of file content.
type Hasher interface {
	io.Writer
	// Name is the canonical registry name (upper-case, e.g. "SHA256").
	Name() string
	// SumHex returns the lowercase hex digest of everything written.
	SumHex() string
	// Reset restores the initial state for reuse.
	Reset()
}

type streamHasher struct {
	name string
	h    hash.Hash
}

func (s *streamHasher) Write(p []byte) (int, error) { return s.h.Write(p) }
func (s *streamHasher) Name() string                { return s.name }
func (s *streamHasher) SumHex() string              { return hex.EncodeToString(s.h.Sum(nil)) }
func (s *streamHasher) Reset()                      { s.h.Reset() }

type factory func() hash.Hash

var algorithms = map[string]factory{
	"MD5":     md5.New,
	"SHA1":    sha1.New,
	"SHA256":  sha256.New,
	"SHA512":  sha512.New,
	"BLAKE2B": func() hash.Hash { h, _ := blake2b.New256(nil); return h },
	"BLAKE3":  func() hash.Hash { return blake3.New() },
}

// New creates a streaming hasher for the named algorithm. Names are
// case-insensitive; dashes are ignored ("sha-256" == "SHA256").
func New(name string) (Hasher, error) {
	canonical := CanonicalName(name)
	f, ok := algorithms[canonical]
	if !ok {
		return nil, fmt.Errorf("unsupported hash algorithm %q (supported: %s)",
			name, strings.Join(Algorithms(), ", "))
	}
	return &streamHasher{name: canonical, h: f()}, nil
}

// CanonicalName normalizes an algorithm name to its registry form.
func CanonicalName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", ""))
}

// Supported reports whether name resolves to a registered algorithm.
func Supported(name string) bool {
	_, ok := algorithms[CanonicalName(name)]
	return ok
}

// Algorithms returns the registered algorithm names, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
