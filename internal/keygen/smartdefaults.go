package keygen

// smartDefaultAllowlist and smartDefaultDenylist are the fixed glob
// patterns consulted when a task has no explicit include patterns but
// opts into smart defaults. The denylist always wins over the allowlist.
var (
	smartDefaultAllowlist = []string{
		"PATH", "HOME", "USER", "SHELL", "LANG", "LC_*",
		"CC", "CXX", "CPPFLAGS", "CFLAGS", "CXXFLAGS", "LDFLAGS", "MAKEFLAGS", "MAKELEVEL", "MFLAGS",
		"CARGO_*", "RUST*",
		"npm_config_*", "NODE_*", "NPM_*",
		"PYTHON*", "PIP_*", "VIRTUAL_ENV",
		"GO*", "GOPATH", "GOROOT",
		"JAVA_*", "MAVEN_*", "GRADLE_*",
		"DOCKER_*",
		"BUILD_*", "BAZEL_*", "NIX_*",
		"GIT_*", "SVN_*", "HG_*",
		"APT_*", "YUM_*", "BREW_*",
		"OS", "ARCH", "TARGET", "HOST",
		"CI", "CONTINUOUS_INTEGRATION", "BUILD_NUMBER", "GITHUB_*", "GITLAB_*", "JENKINS_*", "TRAVIS_*",
		"EDITOR", "VISUAL", "PAGER",
	}

	smartDefaultDenylist = []string{
		"PS1", "PS2", "PS3", "PS4", "TERM", "TERMCAP", "COLORTERM", "PWD", "OLDPWD", "SHLVL", "_", "SHELL_SESSION_ID",
		"DISPLAY", "WAYLAND_DISPLAY", "XDG_*", "DBUS_*", "SESSION_MANAGER", "XAUTHORITY", "WINDOWID",
		"HIST*", "LESS*", "MORE", "PAGER", "MANPAGER", "TMPDIR", "TEMP", "TMP",
		"LS_COLORS", "LSCOLORS", "CLICOLOR", "CLICOLOR_FORCE",
		"SSH_*", "SSH_CLIENT", "SSH_CONNECTION", "SSH_TTY", "WINDOW", "STY", "TMUX*", "SCREEN*",
		"RANDOM", "LINENO", "SECONDS", "BASHPID",
		"PPID", "UID", "EUID", "GID", "EGID",
		"HOSTNAME", "LOGNAME", "USERDOMAIN", "COMPUTERNAME", "USERNAME",
		"VTE_VERSION", "WT_SESSION", "TERM_PROGRAM", "TERM_PROGRAM_VERSION", "ITERM_SESSION_ID",
		"__CF_USER_TEXT_ENCODING", "COMMAND_MODE", "SECURITYSESSIONID",
		"XDG_RUNTIME_DIR", "XDG_DATA_DIRS", "XDG_CONFIG_DIRS",
		"WSL*", "WSL_DISTRO_NAME", "WSL_INTEROP", "CYGWIN*", "MSYS*",
	}
)

// isSmartDefaultVar reports whether name is allowed through the fixed
// smart-default lists: denylist first, then allowlist, defaulting to
// excluded.
func isSmartDefaultVar(name string) bool {
	for _, pattern := range smartDefaultDenylist {
		if globMatch(pattern, name) {
			return false
		}
	}

	for _, pattern := range smartDefaultAllowlist {
		if globMatch(pattern, name) {
			return true
		}
	}

	return false
}
