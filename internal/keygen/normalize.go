package keygen

import "strings"

// NormalizeWorkingDir normalizes a working directory path for deterministic
// cache keys across platforms: backslashes become forward slashes,
// trailing "/" and "/." are stripped, "." and ".." components are
// resolved lexically (no filesystem access), and a Windows drive letter
// "C:" becomes "/c".
//
// This is intentionally not filesystem-accurate — a lexical ".." above a
// symlinked directory can resolve differently than the real filesystem
// would. That mismatch is inherited from the original cache-key algorithm
// this was ported from, not introduced here.
func NormalizeWorkingDir(path string) string {
	normalized := strings.ReplaceAll(path, `\`, "/")

	for strings.HasSuffix(normalized, "/") || strings.HasSuffix(normalized, "/.") {
		if strings.HasSuffix(normalized, "/.") {
			normalized = normalized[:len(normalized)-2]
		} else {
			normalized = normalized[:len(normalized)-1]
		}
	}

	isAbsolute := strings.HasPrefix(normalized, "/")

	var components []string

	for _, component := range strings.Split(normalized, "/") {
		switch component {
		case "", ".":
			continue
		case "..":
			if len(components) > 0 && components[len(components)-1] != ".." {
				components = components[:len(components)-1]
			} else if !isAbsolute {
				components = append(components, component)
			}
		default:
			components = append(components, component)
		}
	}

	var resolved string
	if isAbsolute {
		resolved = "/" + strings.Join(components, "/")
	} else {
		resolved = strings.Join(components, "/")
	}

	if resolved == "" || resolved == "/" {
		return "/"
	}

	if !strings.HasPrefix(resolved, "/") && !strings.Contains(resolved, ":") {
		return "/" + resolved
	}

	if len(resolved) > 1 && resolved[1] == ':' {
		drive := strings.ToLower(resolved[:1])
		rest := resolved[2:]

		return "/" + drive + rest
	}

	return resolved
}
