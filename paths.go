package taskcache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/cuenv-dev/taskcache/internal/cacheerr"
)

// digestKey returns the SHA-256 hex digest of a cache key, the fingerprint
// used to derive both its object and metadata paths.
func digestKey(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}

// validateKey rejects empty or null-byte keys before any state is touched,
// per the data model's invariant 5.
func validateKey(key string) error {
	if key == "" {
		return cacheerr.InvalidKey(key, "key must not be empty")
	}

	if strings.IndexByte(key, 0) >= 0 {
		return cacheerr.InvalidKey(key, "key must not contain null bytes")
	}

	return nil
}

// objectPaths derives the sharded on-disk data/metadata paths for key, per
// the data model: <base>/objects/H[0:2]/H[2:4]/H and
// <base>/metadata/H[0:2]/H[2:4]/H.meta.
func objectPaths(baseDir, key string) (dataPath, metaPath string) {
	h := digestKey(key)

	dataPath = filepath.Join(baseDir, "objects", h[0:2], h[2:4], h)
	metaPath = filepath.Join(baseDir, "metadata", h[0:2], h[2:4], h+".meta")

	return dataPath, metaPath
}

// shardDir returns the two-level shard directory a data/metadata path for
// digest h lives under, so callers can MkdirAll it before writing.
func shardDir(baseDir, subtree, h string) string {
	return filepath.Join(baseDir, subtree, h[0:2], h[2:4])
}
