package taskcache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	taskcache "github.com/cuenv-dev/taskcache"
)

func TestKeyGenerator_FacadeDelegatesToInternalGenerator(t *testing.T) {
	t.Parallel()

	gen := taskcache.NewKeyGenerator(taskcache.FilterConfig{})

	inputs := map[string]string{"src/main.go": "h1"}
	env := map[string]string{"PATH": "/usr/bin", "HOME": "/home/u"}

	k1 := gen.GenerateCacheKey("build", "cfg-hash", "/proj", inputs, env, "go build")
	k2 := gen.GenerateCacheKey("build", "cfg-hash", "/proj", inputs, env, "go build")

	require.Equal(t, k1, k2)
	require.Len(t, k1, 64)
}

func TestKeyGenerator_FilterEnvVarsAppliesTaskConfig(t *testing.T) {
	t.Parallel()

	gen := taskcache.NewKeyGenerator(taskcache.FilterConfig{})
	gen.AddTaskConfig("build", taskcache.FilterConfig{
		Include: []string{"PATH"},
	})

	filtered := gen.FilterEnvVars("build", map[string]string{
		"PATH":   "/usr/bin",
		"SECRET": "dont-leak",
	})

	require.Contains(t, filtered, "PATH")
	require.NotContains(t, filtered, "SECRET")
}

func TestNormalizeWorkingDir_StripsTrailingSlash(t *testing.T) {
	t.Parallel()

	require.Equal(t, taskcache.NormalizeWorkingDir("/a/b/"), taskcache.NormalizeWorkingDir("/a/b"))
}
