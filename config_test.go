package taskcache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	taskcache "github.com/cuenv-dev/taskcache"
)

func TestConfig_CacheJSON5FileIsMergedOnOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	json5 := `{
		// trailing comments and commas are allowed (JWCC)
		"max_memory_size": 2048,
		"eviction_policy": "lfu",
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache.json5"), []byte(json5), 0o644))

	c, err := taskcache.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// The file uses comments and a trailing comma; the cache must open with
	// it and accept a write. The overlaid values themselves are not
	// observable through the public API and are not checked here.
	require.NoError(t, taskcache.Put(c, "k", "v", nil))
}

func TestConfig_OptionsOverrideJSON5File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// The file alone names an unknown policy, which New rejects; opening
	// succeeds only if the option replaces the file's value.
	json5 := `{"eviction_policy": "made-up"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache.json5"), []byte(json5), 0o644))

	c, err := taskcache.New(dir, taskcache.WithEvictionPolicy("arc"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, taskcache.Put(c, "k", "v", nil))
}

func TestConfig_MalformedJSON5FileIsRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache.json5"), []byte("{not json"), 0o644))

	_, err := taskcache.New(dir)
	require.Error(t, err)
}

func TestConfig_UnknownEvictionPolicyRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := taskcache.New(dir, taskcache.WithEvictionPolicy("made-up"))
	require.Error(t, err)
}
