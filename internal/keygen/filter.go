package keygen

import (
	"regexp"
	"strings"
)

// FilterConfig configures the environment-variable filtering pipeline for
// either the global generator or a single task override.
type FilterConfig struct {
	Include          []string
	Exclude          []string
	UseSmartDefaults bool
}

// FilterStats reports the outcome of filtering one environment map, for
// observability.
type FilterStats struct {
	TotalVars    int
	FilteredVars int
	ExcludedVars int
}

// ExclusionRate returns the fraction of variables dropped, or 0 when
// TotalVars is 0.
func (s FilterStats) ExclusionRate() float64 {
	if s.TotalVars == 0 {
		return 0
	}

	return float64(s.ExcludedVars) / float64(s.TotalVars)
}

// compiledPatterns holds the regexes compiled from a FilterConfig's
// include/exclude glob lists.
type compiledPatterns struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// compilePatterns translates each glob-like pattern (where "*" means
// "any run of characters") into an anchored regexp.
func compilePatterns(cfg FilterConfig) compiledPatterns {
	return compiledPatterns{
		include: compileGlobs(cfg.Include),
		exclude: compileGlobs(cfg.Exclude),
	}
}

func compileGlobs(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		if re, err := regexp.Compile(globToRegexpSource(p)); err == nil {
			out = append(out, re)
		}
	}

	return out
}

func globToRegexpSource(glob string) string {
	var b strings.Builder

	b.WriteString("^")

	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}

	b.WriteString("$")

	return b.String()
}

// globMatch reports whether name matches a single glob pattern, used by
// the smart-default lists which are small enough not to warrant caching
// compiled regexes per lookup.
func globMatch(pattern, name string) bool {
	re, err := regexp.Compile(globToRegexpSource(pattern))
	if err != nil {
		return false
	}

	return re.MatchString(name)
}

func anyMatch(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}

	return false
}

// shouldIncludeVar applies the four-step decision from the filtering
// pipeline: exclude wins, then include-if-present, then smart defaults,
// then keep-all.
func shouldIncludeVar(name string, cfg FilterConfig, patterns compiledPatterns) bool {
	if anyMatch(patterns.exclude, name) {
		return false
	}

	if len(cfg.Include) > 0 {
		return anyMatch(patterns.include, name)
	}

	if cfg.UseSmartDefaults {
		return isSmartDefaultVar(name)
	}

	return true
}

// filterEnvVars applies shouldIncludeVar to every entry of env, returning
// the retained subset.
func filterEnvVars(env map[string]string, cfg FilterConfig, patterns compiledPatterns) map[string]string {
	filtered := make(map[string]string, len(env))

	for k, v := range env {
		if shouldIncludeVar(k, cfg, patterns) {
			filtered[k] = v
		}
	}

	return filtered
}
