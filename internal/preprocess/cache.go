package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns a stable content hash of a source file plus the flags
// that influence its rewrite, so repeated invocations with unchanged
// input and unchanged flags can skip reprocessing (the --force flag
// bypasses this). Grounded on the original tool's own checksum-caching
// behavior; crypto/sha256 stays on the standard library since no
// example repo reaches for a third-party hashing library for this kind
// of build-cache key — the domain is "hash some bytes", not a concern
// any example pulls an ecosystem dependency in for.
func Digest(source []byte, flags string) string {
	h := sha256.New()
	h.Write(source)
	h.Write([]byte{0})
	h.Write([]byte(flags))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache records the digest of the last successful run for a given
// output path, keyed in memory by the caller (internal/cli persists it
// to a small sidecar file next to the output, one line: the digest).
type Cache struct {
	entries map[string]string
}

// NewCache builds an empty in-memory cache; the CLI layer seeds it by
// reading the sidecar file's prior digest, if any, into Seed.
func NewCache() *Cache {
	return &Cache{entries: map[string]string{}}
}

// Seed records a previously computed digest for outputPath, as read
// from its on-disk cache sidecar.
func (c *Cache) Seed(outputPath, digest string) {
	c.entries[outputPath] = digest
}

// UpToDate reports whether outputPath's recorded digest matches the
// current one — i.e. whether this run can be skipped.
func (c *Cache) UpToDate(outputPath, digest string) bool {
	prev, ok := c.entries[outputPath]
	return ok && prev == digest
}

// Record stores the digest for outputPath after a successful run.
func (c *Cache) Record(outputPath, digest string) {
	c.entries[outputPath] = digest
}
