// Package keygen implements the cache-key generator (C9): a deterministic
// SHA-256 fingerprint over task name, config hash, normalized working
// directory, command text, sorted input files, and a filtered,
// sorted-by-key environment map.
package keygen

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
)

// Generator produces deterministic cache keys and applies the
// environment-filtering pipeline, with optional per-task overrides.
type Generator struct {
	mu sync.RWMutex

	globalConfig FilterConfig
	global       compiledPatterns

	taskConfigs map[string]FilterConfig
	taskPattern map[string]compiledPatterns
}

// New constructs a Generator using cfg as the global filter configuration.
func New(cfg FilterConfig) *Generator {
	return &Generator{
		globalConfig: cfg,
		global:       compilePatterns(cfg),
		taskConfigs:  make(map[string]FilterConfig),
		taskPattern:  make(map[string]compiledPatterns),
	}
}

// AddTaskConfig installs a per-task override that replaces the global
// filter configuration when generating keys or filtering env for taskName.
func (g *Generator) AddTaskConfig(taskName string, cfg FilterConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.taskConfigs[taskName] = cfg
	g.taskPattern[taskName] = compilePatterns(cfg)
}

func (g *Generator) configFor(taskName string) (FilterConfig, compiledPatterns) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if cfg, ok := g.taskConfigs[taskName]; ok {
		return cfg, g.taskPattern[taskName]
	}

	return g.globalConfig, g.global
}

// FilterEnvVars applies taskName's effective filter configuration (or the
// global one) to env.
func (g *Generator) FilterEnvVars(taskName string, env map[string]string) map[string]string {
	cfg, patterns := g.configFor(taskName)

	return filterEnvVars(env, cfg, patterns)
}

// FilteringStats reports how many variables FilterEnvVars would keep.
func (g *Generator) FilteringStats(taskName string, env map[string]string) FilterStats {
	filtered := g.FilterEnvVars(taskName, env)

	return FilterStats{
		TotalVars:    len(env),
		FilteredVars: len(filtered),
		ExcludedVars: len(env) - len(filtered),
	}
}

// GenerateCacheKey computes the deterministic SHA-256 hex fingerprint for
// a task execution. inputFiles maps input path to its content hash.
func (g *Generator) GenerateCacheKey(
	taskName, taskConfigHash, workingDir string,
	inputFiles map[string]string,
	envVars map[string]string,
	command string,
) string {
	normalizedDir := NormalizeWorkingDir(workingDir)
	filteredEnv := g.FilterEnvVars(taskName, envVars)

	return computeHash(taskName, taskConfigHash, normalizedDir, inputFiles, filteredEnv, command)
}

// computeHash hashes the fixed field order: task name, config hash,
// working dir, command, sorted (path, hash) input pairs, sorted
// (name, value) env pairs.
func computeHash(
	taskName, taskConfigHash, workingDir string,
	inputFiles map[string]string,
	envVars map[string]string,
	command string,
) string {
	h := sha256.New()

	h.Write([]byte(taskName))
	h.Write([]byte(taskConfigHash))
	h.Write([]byte(workingDir))

	if command != "" {
		h.Write([]byte(command))
	}

	for _, path := range sortedKeys(inputFiles) {
		h.Write([]byte(path))
		h.Write([]byte(inputFiles[path]))
	}

	for _, name := range sortedKeys(envVars) {
		h.Write([]byte(name))
		h.Write([]byte(envVars[name]))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
