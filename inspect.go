package taskcache

import (
	"path/filepath"
	"strings"
)

// ObjectSummary describes one on-disk entry addressed by its digest (the
// hex SHA-256 of the original cache key), for tools that inspect a cache
// tree without knowing the original keys — content addressing means the
// original key is never recoverable from the digest alone.
type ObjectSummary struct {
	Digest   string
	Metadata Metadata
}

// ListObjects walks metadata/ and returns a summary of every entry,
// independent of any in-memory tier. Used by cmd/cachectl's "list"
// subcommand; not part of the hot path.
func (c *Cache) ListObjects() ([]ObjectSummary, error) {
	metaRoot := filepath.Join(c.baseDir, "metadata")

	top, err := c.fs.ReadDir(metaRoot)
	if err != nil {
		return nil, err
	}

	var out []ObjectSummary

	for _, shard1 := range top {
		if !shard1.IsDir() {
			continue
		}

		shard1Path := filepath.Join(metaRoot, shard1.Name())

		shard2Entries, err := c.fs.ReadDir(shard1Path)
		if err != nil {
			continue
		}

		for _, shard2 := range shard2Entries {
			if !shard2.IsDir() {
				continue
			}

			shard2Path := filepath.Join(shard1Path, shard2.Name())

			metaFiles, err := c.fs.ReadDir(shard2Path)
			if err != nil {
				continue
			}

			for _, f := range metaFiles {
				if f.IsDir() || !strings.HasSuffix(f.Name(), ".meta") {
					continue
				}

				digest := strings.TrimSuffix(f.Name(), ".meta")

				raw, err := c.fs.ReadFile(filepath.Join(shard2Path, f.Name()))
				if err != nil {
					continue
				}

				meta, err := decodeMetaBytes(raw)
				if err != nil {
					continue
				}

				out = append(out, ObjectSummary{Digest: digest, Metadata: meta})
			}
		}
	}

	return out, nil
}

// MetadataByDigest reads a .meta file addressed directly by its hex
// SHA-256 digest, for inspection tools that only have the digest (as
// surfaced by ListObjects), not the original cache key.
func (c *Cache) MetadataByDigest(digest string) (Metadata, bool, error) {
	if len(digest) < 4 {
		return Metadata{}, false, nil
	}

	metaPath := filepath.Join(c.baseDir, "metadata", digest[0:2], digest[2:4], digest+".meta")

	raw, err := c.fs.ReadFile(metaPath)
	if err != nil {
		return Metadata{}, false, nil
	}

	meta, err := decodeMetaBytes(raw)
	if err != nil {
		return Metadata{}, false, err
	}

	return meta, true, nil
}
