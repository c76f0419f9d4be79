// Package frontmatter extracts a leading YAML document from a markdown
// file's content, the same "---\n...\n---\n" convention the spec poller
// and the agent-definition loader both rely on.
package frontmatter

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Split separates content into its YAML frontmatter and body. If content
// has no frontmatter delimiter, the whole input is returned as body with
// ok=false.
func Split(content string) (raw string, body string, ok bool) {
	const delim = "---"
	if !strings.HasPrefix(content, delim+"\n") && !strings.HasPrefix(content, delim+"\r\n") {
		return "", content, false
	}

	start := len(delim)
	if start < len(content) && content[start] == '\r' {
		start++
	}
	if start < len(content) && content[start] == '\n' {
		start++
	}

	rest := content[start:]
	closeIdx := strings.Index(rest, "\n"+delim)
	if closeIdx == -1 {
		return "", content, false
	}

	raw = rest[:closeIdx]
	bodyStart := closeIdx + 1 + len(delim)
	for bodyStart < len(rest) && (rest[bodyStart] == '\n' || rest[bodyStart] == '\r') {
		bodyStart++
	}
	body = ""
	if bodyStart < len(rest) {
		body = rest[bodyStart:]
	}
	return raw, body, true
}

// Parse splits content and unmarshals its frontmatter into out. If no
// frontmatter is present, out is left untouched and the full content is
// returned as body.
func Parse(content string, out any) (body string, err error) {
	raw, body, ok := Split(content)
	if !ok {
		return body, nil
	}
	if err := yaml.Unmarshal([]byte(raw), out); err != nil {
		return body, fmt.Errorf("parse frontmatter: %w", err)
	}
	return body, nil
}
