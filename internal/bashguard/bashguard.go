// Package bashguard implements the pre-tool-use guard for implementor
// Bash invocations (§4.I): a quote-aware shell segmenter plus an
// allow/deny engine over the segmented prefixes and the raw string.
package bashguard

import "regexp"

// Result is the validator's verdict for one command string.
type Result struct {
	Allowed bool
	Reason  string
}

// allowPrefixes is the single source of truth for the allowlist (§9 open
// question: treated as a constant here, not a file or config value).
var allowPrefixes = map[string]bool{
	// version control
	"git": true, "gh": true, "svn": true, "hg": true,
	// package managers
	"npm": true, "npx": true, "yarn": true, "pnpm": true, "go": true,
	"pip": true, "pip3": true, "cargo": true, "make": true,
	// read-only text utilities
	"head": true, "tail": true, "grep": true, "rg": true, "awk": true,
	"sed": true, "tr": true, "cut": true, "sort": true, "uniq": true,
	"wc": true, "jq": true, "xargs": true, "diff": true, "tee": true,
	// shell utilities
	"echo": true, "printf": true, "ls": true, "pwd": true, "which": true,
	"command": true, "test": true, "true": true, "false": true,
	"env": true, "date": true, "basename": true, "dirname": true,
	"realpath": true, "find": true,
	// basic filesystem writes
	"chmod": true, "mkdir": true, "touch": true, "cp": true, "mv": true,
	// named script paths
	"./scripts/test.sh": true, "./scripts/build.sh": true,
}

type blockPattern struct {
	category string
	re       *regexp.Regexp
}

// blockPatterns is the single source of truth for the blocklist,
// evaluated against the full, unsegmented, quote-masked input. Order
// matters only for the diagnostic message of the first match.
var blockPatterns = []blockPattern{
	{"destructive-vcs", regexp.MustCompile(`git\s+reset\s+--hard`)},
	{"destructive-vcs", regexp.MustCompile(`git\s+clean\s+-\w*f\w*`)},
	{"destructive-vcs", regexp.MustCompile(`git\s+checkout\s+\.`)},
	{"destructive-vcs", regexp.MustCompile(`git\s+restore\s+\.`)},
	{"destructive-vcs", regexp.MustCompile(`git\s+branch\s+.*-D`)},
	{"file-deletion", regexp.MustCompile(`\brm\s`)},
	{"privilege-escalation", regexp.MustCompile(`\bsudo\b`)},
	{"remote-code-execution", regexp.MustCompile(`(curl|wget).*\|\s*(bash|sh|zsh)`)},
	{"remote-code-execution", regexp.MustCompile(`\beval\b`)},
	{"system-modification", regexp.MustCompile(`\bdd\s+if=`)},
	{"system-modification", regexp.MustCompile(`\bmkfs\b`)},
	{"system-modification", regexp.MustCompile(`\bfdisk\b`)},
	{"system-modification", regexp.MustCompile(`chmod\s+-R`)},
	{"system-modification", regexp.MustCompile(`chmod\s+777`)},
	{"system-modification", regexp.MustCompile(`chmod\s+\S*o\+w`)},
	{"system-modification", regexp.MustCompile(`chmod\s+\S*a\+w`)},
	{"system-modification", regexp.MustCompile(`\bchown\b`)},
	{"process-management", regexp.MustCompile(`\bkill\b`)},
	{"process-management", regexp.MustCompile(`\bpkill\b`)},
	{"process-management", regexp.MustCompile(`\bkillall\b`)},
}

// Validate implements the algorithm of §4.I. The blocklist is scanned
// independently of the allowlist and takes precedence: if both would
// block, the blocklist's reason wins.
func Validate(command string) Result {
	if isBlank(command) {
		return Result{Allowed: true}
	}

	var allowResult *Result
	for _, seg := range Segment(command) {
		if seg == "" {
			continue
		}
		prefix := firstToken(seg)
		if prefix == "" {
			continue
		}
		if !allowPrefixes[prefix] {
			r := Result{Allowed: false, Reason: "'" + prefix + "' is not in the allowed command list"}
			allowResult = &r
			break
		}
	}

	masked := maskQuoted(command)
	for _, bp := range blockPatterns {
		if bp.re.MatchString(masked) {
			return Result{Allowed: false, Reason: "Blocked: matches dangerous pattern '" + bp.re.String() + "'"}
		}
	}

	if allowResult != nil {
		return *allowResult
	}
	return Result{Allowed: true}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func firstToken(s string) string {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	start := i
	for i < len(s) && !isSpace(s[i]) {
		i++
	}
	return s[start:i]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
