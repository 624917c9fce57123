// Package analysis derives insight from persisted commands: categorization,
// interactivity/destructiveness flags, complexity scoring, error
// classification, and pattern mining. Every function is pure and read-only;
// empty input yields zeroed aggregates, never an error.
package analysis

import (
	"regexp"
	"strings"
)

// Category groups for base commands. Unmatched commands are CategoryGeneral.
const (
	CategoryVersionControl  = "version-control"
	CategoryPackageMgmt     = "package-management"
	CategoryBuild           = "build-tooling"
	CategoryFileOps         = "file-operations"
	CategorySystemOps       = "system-operations"
	CategoryNetworkOps      = "network-operations"
	CategoryNavigation      = "navigation"
	CategoryTextProcessing  = "text-processing"
	CategoryLanguageRuntime = "language-runtimes"
	CategoryGeneral         = "general"
)

var categoryRules = map[string][]string{
	CategoryVersionControl:  {"git", "svn", "hg"},
	CategoryPackageMgmt:     {"npm", "yarn", "pnpm", "pip", "pip3", "apt", "apt-get", "brew", "gem", "cargo"},
	CategoryBuild:           {"make", "cmake", "gradle", "mvn", "bazel", "docker", "docker-compose", "tsc", "webpack"},
	CategoryFileOps:         {"ls", "cp", "mv", "rm", "mkdir", "rmdir", "touch", "cat", "find", "tar", "zip", "unzip", "ln", "chmod", "chown"},
	CategorySystemOps:       {"ps", "top", "htop", "kill", "killall", "systemctl", "service", "df", "du", "free", "uname", "sudo", "reboot", "shutdown"},
	CategoryNetworkOps:      {"curl", "wget", "ping", "ssh", "scp", "rsync", "netstat", "dig", "nslookup", "ifconfig", "ip", "telnet"},
	CategoryNavigation:      {"cd", "pwd", "pushd", "popd"},
	CategoryTextProcessing:  {"grep", "sed", "awk", "sort", "uniq", "head", "tail", "wc", "cut", "tr", "jq"},
	CategoryLanguageRuntime: {"python", "python3", "node", "ruby", "perl", "php", "java", "go", "deno", "bun"},
}

// baseLookup is built once from categoryRules for O(1) categorization.
var baseLookup = func() map[string]string {
	m := make(map[string]string)
	for category, bases := range categoryRules {
		for _, base := range bases {
			m[base] = category
		}
	}
	return m
}()

// interactivePrograms lists programs that take over the terminal: editors,
// pagers, REPLs, remote shells, DB clients. Advisory only.
var interactivePrograms = map[string]bool{
	"vim": true, "vi": true, "nvim": true, "nano": true, "emacs": true,
	"less": true, "more": true, "top": true, "htop": true, "man": true,
	"python": true, "python3": true, "node": true, "irb": true, "ghci": true,
	"ssh": true, "telnet": true, "ftp": true, "sftp": true,
	"psql": true, "mysql": true, "sqlite3": true, "mongosh": true, "redis-cli": true,
	"gdb": true, "lldb": true, "tmux": true, "screen": true,
}

// destructivePatterns flag commands with destructive intent. Each pattern
// anchors at a command token so flag-looking arguments of other commands
// ("ls -rf") do not match.
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|[;|&]\s*|\bsudo\s+)rm\s+(?:-\w*\s+)*-\w*[rf]\w*(?:\s|$)`),
	regexp.MustCompile(`(?:^|[;|&]\s*|\bsudo\s+)shred\b`),
	regexp.MustCompile(`(?:^|[;|&]\s*|\bsudo\s+)mkfs(?:\.\w+)?\b`),
	regexp.MustCompile(`(?:^|[;|&]\s*|\bsudo\s+)dd\s+.*\bof=/dev/`),
	regexp.MustCompile(`(?:^|[;|&]\s*)truncate\s+-s\s*0\b`),
	regexp.MustCompile(`(?:^|[;|&]\s*):\s*>\s*\S`),
	regexp.MustCompile(`(?i)\bdrop\s+(?:table|database|schema)\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`(?:^|[;|&]\s*|\bsudo\s+)format\s+[a-z]:`),
}

// BaseCommand returns the first whitespace-separated token of a command line.
func BaseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Categorize classifies a command by its base token against the fixed rule
// groups, falling back to "general".
func Categorize(command string) string {
	if category, ok := baseLookup[BaseCommand(command)]; ok {
		return category
	}
	return CategoryGeneral
}

// IsInteractive reports whether the command launches a known interactive
// program. The base token is checked after stripping a leading sudo.
func IsInteractive(command string) bool {
	fields := strings.Fields(command)
	if len(fields) > 0 && fields[0] == "sudo" {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return false
	}
	return interactivePrograms[fields[0]]
}

// IsDestructive reports whether the command matches a known destructive
// pattern (recursive/forced delete, truncation, DROP/DELETE SQL, formatting).
func IsDestructive(command string) bool {
	for _, pattern := range destructivePatterns {
		if pattern.MatchString(command) {
			return true
		}
	}
	return false
}
