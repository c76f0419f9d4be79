package agent

import (
	"fmt"
	"strings"

	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/provider"
)

// ChangedSpec is one spec section of a planner trigger prompt.
type ChangedSpec struct {
	FilePath string
	Added    bool   // true when no prior blob SHA exists
	Diff     string // unified diff against the prior blob SHA, when Added=false
	Content  string // full content, when Added=true
}

// BuildPlannerPrompt assembles the planner's trigger prompt: one section
// per changed spec, then one section per existing work item (§4.H
// step 2).
func BuildPlannerPrompt(specs []ChangedSpec, workItems []*domain.WorkItem) string {
	var b strings.Builder
	b.WriteString("# Changed specifications\n\n")
	for _, s := range specs {
		if s.Added {
			fmt.Fprintf(&b, "## %s (added)\n\n```\n%s\n```\n\n", s.FilePath, s.Content)
		} else {
			fmt.Fprintf(&b, "## %s (modified)\n\n```diff\n%s\n```\n\n", s.FilePath, s.Diff)
		}
	}

	b.WriteString("# Existing work items\n\n")
	if len(workItems) == 0 {
		b.WriteString("(none)\n")
	}
	for _, w := range workItems {
		fmt.Fprintf(&b, "## %s: %s\n\nStatus: %s\n\n%s\n\n", w.ID, w.Title, w.Status, w.Body)
	}
	return b.String()
}

// ImplementorContext bundles the work item and, when present, its linked
// revision's material (§4.H step 2).
type ImplementorContext struct {
	WorkItem       *domain.WorkItem
	Revision       *domain.Revision
	RevisionFiles  []provider.RevisionFile
	ReviewHistory  *provider.ReviewHistory
	CIFailed       bool
	CIReason       string
	CIURL          string
	IncludeCISect  bool // false for the reviewer (§4.H step 2: "CI section is omitted")
}

// BuildImplementorPrompt assembles the implementor's (and, with
// IncludeCISect=false, the reviewer's) trigger prompt.
func BuildImplementorPrompt(c ImplementorContext) string {
	var b strings.Builder

	w := c.WorkItem
	fmt.Fprintf(&b, "# Work item %s: %s\n\nStatus: %s\n\n%s\n\n", w.ID, w.Title, w.Status, w.Body)

	if c.Revision == nil {
		return b.String()
	}

	r := c.Revision
	fmt.Fprintf(&b, "# Revision %s: %s\n\nURL: %s\nHead: %s (%s)\n\n", r.ID, r.Title, r.URL, r.HeadSHA, r.HeadRef)

	b.WriteString("## Files\n\n")
	for _, f := range c.RevisionFiles {
		fmt.Fprintf(&b, "- %s (%s)\n", f.Path, f.Status)
		if f.Patch != "" {
			fmt.Fprintf(&b, "```diff\n%s\n```\n", f.Patch)
		}
	}

	if c.IncludeCISect && c.CIFailed {
		b.WriteString("\n## CI status: failure\n\n")
		if c.CIReason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", c.CIReason)
		}
		if c.CIURL != "" {
			fmt.Fprintf(&b, "URL: %s\n", c.CIURL)
		}
	}

	if c.ReviewHistory != nil {
		if len(c.ReviewHistory.Reviews) > 0 {
			b.WriteString("\n## Prior review submissions\n\n")
			for _, rev := range c.ReviewHistory.Reviews {
				fmt.Fprintf(&b, "- %s (%s): %s\n", rev.Author, rev.State, rev.Body)
			}
		}
		if len(c.ReviewHistory.InlineComments) > 0 {
			b.WriteString("\n## Prior inline comments\n\n")
			for _, ic := range c.ReviewHistory.InlineComments {
				line := "?"
				if ic.Line != nil {
					line = fmt.Sprintf("%d", *ic.Line)
				}
				fmt.Fprintf(&b, "- %s:%s (%s): %s\n", ic.Path, line, ic.Author, ic.Body)
			}
		}
	}

	return b.String()
}

// AppendContextFiles appends configured extra context files verbatim
// (config.ContextPaths), one section per file.
func AppendContextFiles(prompt string, files map[string]string) string {
	if len(files) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n# Additional context\n\n")
	for path, content := range files {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", path, content)
	}
	return b.String()
}
