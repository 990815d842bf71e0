package taskcache

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/cuenv-dev/taskcache/internal/storage"
)

// VerifyReport summarizes one pass over every entry reachable from the
// metadata tree, independent of what the fast path or memory tier
// currently hold.
type VerifyReport struct {
	Checked  int
	Corrupt  []string
	Orphaned []string
}

// VerifyAll walks metadata/, decoding and checksum-validating every .meta
// file and the object it points at, without consulting any in-memory tier.
// It is the read-only counterpart to the background cleanup sweep, meant
// for cmd/cachectl's "verify" subcommand rather than the hot path.
func (c *Cache) VerifyAll() (VerifyReport, error) {
	var report VerifyReport

	metaRoot := filepath.Join(c.baseDir, "metadata")

	top, err := c.fs.ReadDir(metaRoot)
	if err != nil {
		return report, err
	}

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

			c.verifyShard(shard1.Name(), shard2.Name(), &report)
		}
	}

	return report, nil
}

func (c *Cache) verifyShard(shard1, shard2 string, report *VerifyReport) {
	shard2Path := filepath.Join(c.baseDir, "metadata", shard1, shard2)

	metaFiles, err := c.fs.ReadDir(shard2Path)
	if err != nil {
		return
	}

	for _, f := range metaFiles {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".meta") {
			continue
		}

		h := strings.TrimSuffix(f.Name(), ".meta")
		metaPath := filepath.Join(shard2Path, f.Name())
		dataPath := filepath.Join(c.baseDir, "objects", shard1, shard2, h)

		report.Checked++

		metaRaw, err := c.fs.ReadFile(metaPath)
		if err != nil {
			report.Corrupt = append(report.Corrupt, metaPath)

			continue
		}

		meta, err := decodeMetaBytes(metaRaw)
		if err != nil {
			report.Corrupt = append(report.Corrupt, metaPath)

			continue
		}

		if exists, _ := c.fs.Exists(dataPath); !exists {
			report.Orphaned = append(report.Orphaned, metaPath)

			continue
		}

		data, err := c.backend.Read(context.Background(), dataPath)
		if err != nil {
			report.Corrupt = append(report.Corrupt, dataPath)

			continue
		}

		if storage.ContentHash(data) != meta.ContentHash {
			report.Corrupt = append(report.Corrupt, dataPath)
		}
	}
}
