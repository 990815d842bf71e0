package taskcache

import "github.com/cuenv-dev/taskcache/internal/keygen"

// FilterConfig controls the cache-key generator's environment-variable
// filtering pipeline (C9): glob-like include/exclude patterns plus a
// fixed allow/deny list of common build-tool variables.
type FilterConfig = keygen.FilterConfig

// FilterStats reports how many variables a filtering pass kept, dropped,
// and the resulting exclusion rate.
type FilterStats = keygen.FilterStats

// KeyGenerator produces deterministic SHA-256 cache-key fingerprints from
// a task's name, config hash, working directory, input files, filtered
// environment, and command — see GenerateCacheKey.
type KeyGenerator struct {
	gen *keygen.Generator
}

// NewKeyGenerator builds a KeyGenerator using cfg as the global env-filter
// configuration; per-task overrides can be layered on with AddTaskConfig.
func NewKeyGenerator(cfg FilterConfig) *KeyGenerator {
	return &KeyGenerator{gen: keygen.New(cfg)}
}

// AddTaskConfig overrides the global filter configuration for taskName.
func (k *KeyGenerator) AddTaskConfig(taskName string, cfg FilterConfig) {
	k.gen.AddTaskConfig(taskName, cfg)
}

// FilterEnvVars applies taskName's filter configuration (or the global one,
// absent an override) to env, returning only the variables that should
// contribute to the cache key.
func (k *KeyGenerator) FilterEnvVars(taskName string, env map[string]string) map[string]string {
	return k.gen.FilterEnvVars(taskName, env)
}

// FilteringStats reports how many of env's variables survived filtering
// for taskName.
func (k *KeyGenerator) FilteringStats(taskName string, env map[string]string) FilterStats {
	return k.gen.FilteringStats(taskName, env)
}

// GenerateCacheKey computes the deterministic SHA-256 hex fingerprint of a
// task execution's inputs, in a fixed field order: task name, config
// hash, normalized working directory, command, sorted input-file hashes,
// and sorted filtered environment variables.
func (k *KeyGenerator) GenerateCacheKey(
	taskName, taskConfigHash, workingDir string,
	inputFiles map[string]string,
	envVars map[string]string,
	command string,
) string {
	return k.gen.GenerateCacheKey(taskName, taskConfigHash, workingDir, inputFiles, envVars, command)
}

// NormalizeWorkingDir canonicalizes a working directory path the same way
// the key generator does internally: forward slashes, no trailing "/" or
// "/.", ".." resolved lexically, Windows drive letters mapped to "/c".
func NormalizeWorkingDir(path string) string {
	return keygen.NormalizeWorkingDir(path)
}
