package taskcache_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	taskcache "github.com/cuenv-dev/taskcache"
)

func TestCache_MetadataReflectsSize(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	require.NoError(t, taskcache.Put(c, "k", "twelve bytes", nil))

	meta, err := c.Metadata("k")
	require.NoError(t, err)
	// Put stores the gob encoding of the value: 4 bytes of gob framing
	// followed by the 12 string bytes.
	require.Equal(t, int64(4+len("twelve bytes")), meta.SizeBytes)
	require.Equal(t, taskcache.RuntimeVersion, meta.CacheVersion)
}

func TestCache_OpenStampsVersionFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	c, err := taskcache.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	raw, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(taskcache.RuntimeVersion), strings.TrimSpace(string(raw)))
}

func TestCache_MetadataStableAcrossRepeatedReads(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)

	require.NoError(t, taskcache.Put(c, "k", "same value every time", nil))

	first, err := c.Metadata("k")
	require.NoError(t, err)

	second, err := c.Metadata("k")
	require.NoError(t, err)

	if diff := cmp.Diff(first, second, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("metadata changed between reads (-first +second):\n%s", diff)
	}
}

func TestCache_RefusesToOpenNewerOnDiskVersion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "VERSION"),
		[]byte(strconv.Itoa(taskcache.RuntimeVersion+1)),
		0o644,
	))

	_, err := taskcache.New(dir)
	require.Error(t, err)
}
