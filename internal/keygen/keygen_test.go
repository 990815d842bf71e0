package keygen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuenv-dev/taskcache/internal/keygen"
)

func TestGenerateCacheKey_DeterministicAcrossCalls(t *testing.T) {
	t.Parallel()

	g := keygen.New(keygen.FilterConfig{})

	inputs := map[string]string{"src/main.rs": "h1"}
	env := map[string]string{"PATH": "/u/b", "HOME": "/h"}

	k1 := g.GenerateCacheKey("build", "abc", "/p", inputs, env, "cargo build")
	k2 := g.GenerateCacheKey("build", "abc", "/p", inputs, env, "cargo build")

	require.Equal(t, k1, k2)
	require.Len(t, k1, 64)
}

func TestGenerateCacheKey_DiffersOnAnyField(t *testing.T) {
	t.Parallel()

	g := keygen.New(keygen.FilterConfig{})
	base := g.GenerateCacheKey("build", "abc", "/p", nil, nil, "cmd")

	require.NotEqual(t, base, g.GenerateCacheKey("test", "abc", "/p", nil, nil, "cmd"))
	require.NotEqual(t, base, g.GenerateCacheKey("build", "xyz", "/p", nil, nil, "cmd"))
	require.NotEqual(t, base, g.GenerateCacheKey("build", "abc", "/q", nil, nil, "cmd"))
	require.NotEqual(t, base, g.GenerateCacheKey("build", "abc", "/p", nil, nil, "other"))
}

func TestGenerateCacheKey_EnvOrderIndependent(t *testing.T) {
	t.Parallel()

	g := keygen.New(keygen.FilterConfig{})

	envA := map[string]string{"A": "1", "B": "2"}
	envB := map[string]string{"B": "2", "A": "1"}

	require.Equal(t,
		g.GenerateCacheKey("t", "c", "/p", nil, envA, ""),
		g.GenerateCacheKey("t", "c", "/p", nil, envB, ""),
	)
}

func TestGenerateCacheKey_NormalizesWorkingDir(t *testing.T) {
	t.Parallel()

	g := keygen.New(keygen.FilterConfig{})

	require.Equal(t,
		g.GenerateCacheKey("t", "c", "/project", nil, nil, ""),
		g.GenerateCacheKey("t", "c", "/project/.", nil, nil, ""),
	)
	require.Equal(t,
		g.GenerateCacheKey("t", "c", "/project", nil, nil, ""),
		g.GenerateCacheKey("t", "c", "/project/", nil, nil, ""),
	)
}

func TestFilterEnvVars_ExcludeWinsOverInclude(t *testing.T) {
	t.Parallel()

	g := keygen.New(keygen.FilterConfig{
		Include: []string{"SECRET_*"},
		Exclude: []string{"SECRET_KEY"},
	})

	filtered := g.FilterEnvVars("", map[string]string{
		"SECRET_KEY":   "x",
		"SECRET_TOKEN": "y",
		"OTHER":        "z",
	})

	require.NotContains(t, filtered, "SECRET_KEY")
	require.Contains(t, filtered, "SECRET_TOKEN")
	require.NotContains(t, filtered, "OTHER")
}

func TestFilterEnvVars_SmartDefaultsDenyWinsOverAllow(t *testing.T) {
	t.Parallel()

	g := keygen.New(keygen.FilterConfig{UseSmartDefaults: true})

	filtered := g.FilterEnvVars("", map[string]string{
		"PAGER": "less",
		"PATH":  "/usr/bin",
		"PWD":   "/home",
	})

	require.NotContains(t, filtered, "PAGER", "PAGER appears in both lists; deny must win")
	require.Contains(t, filtered, "PATH")
	require.NotContains(t, filtered, "PWD")
}

func TestFilterEnvVars_NoConfigKeepsAll(t *testing.T) {
	t.Parallel()

	g := keygen.New(keygen.FilterConfig{})

	filtered := g.FilterEnvVars("", map[string]string{"ANYTHING": "1"})
	require.Contains(t, filtered, "ANYTHING")
}

func TestAddTaskConfig_OverridesGlobalForThatTaskOnly(t *testing.T) {
	t.Parallel()

	g := keygen.New(keygen.FilterConfig{UseSmartDefaults: true})
	g.AddTaskConfig("special", keygen.FilterConfig{Exclude: []string{"*"}})

	env := map[string]string{"PATH": "/usr/bin"}

	require.Empty(t, g.FilterEnvVars("special", env))
	require.Contains(t, g.FilterEnvVars("other", env), "PATH")
}

func TestFilteringStats_ReportsCounts(t *testing.T) {
	t.Parallel()

	g := keygen.New(keygen.FilterConfig{Exclude: []string{"SECRET"}})

	stats := g.FilteringStats("", map[string]string{"SECRET": "x", "KEEP": "y"})
	require.Equal(t, 2, stats.TotalVars)
	require.Equal(t, 1, stats.FilteredVars)
	require.Equal(t, 1, stats.ExcludedVars)
	require.InDelta(t, 0.5, stats.ExclusionRate(), 0.0001)
}
