package taskcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/cuenv-dev/taskcache/internal/cachemeta"
)

// Metadata is the per-entry record persisted alongside every cached
// object, re-exported so callers never need to import internal/cachemeta.
type Metadata = cachemeta.Metadata

// RuntimeVersion is the cache_version this build writes and expects;
// matches cachemeta.CacheVersion.
const RuntimeVersion = cachemeta.CacheVersion

const versionFileName = "VERSION"

// Metadata reads only the .meta file for key, without touching its data
// file or any cache tier.
func (c *Cache) Metadata(key string) (Metadata, error) {
	if err := validateKey(key); err != nil {
		return Metadata{}, err
	}

	_, metaPath := objectPaths(c.baseDir, key)

	raw, err := c.fs.ReadFile(metaPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("taskcache: read metadata %q: %w", metaPath, err)
	}

	return decodeMetaBytes(raw)
}

// checkVersion implements the version-upgrade policy: on open, a lower
// on-disk version triggers clearing actions/ and cas/; a higher one
// refuses to start. A missing VERSION file is treated as a fresh cache
// and simply stamped with RuntimeVersion.
func checkVersion(baseDir string) error {
	path := filepath.Join(baseDir, versionFileName)

	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return writeVersionFile(path)
		}

		return fmt.Errorf("taskcache: read %s: %w", path, err)
	}

	onDisk, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("taskcache: parse %s: %w", path, err)
	}

	switch {
	case onDisk > RuntimeVersion:
		return fmt.Errorf("taskcache: cache at %s was written by a newer version (%d > %d); refusing to start",
			baseDir, onDisk, RuntimeVersion)
	case onDisk < RuntimeVersion:
		if err := os.RemoveAll(filepath.Join(baseDir, "actions")); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("taskcache: clear actions/ for upgrade: %w", err)
		}

		if err := os.RemoveAll(filepath.Join(baseDir, "cas")); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("taskcache: clear cas/ for upgrade: %w", err)
		}

		return writeVersionFile(path)
	default:
		return nil
	}
}

func writeVersionFile(path string) error {
	if err := atomic.WriteFile(path, strings.NewReader(strconv.Itoa(RuntimeVersion)+"\n")); err != nil {
		return fmt.Errorf("taskcache: write %s: %w", path, err)
	}

	return nil
}
