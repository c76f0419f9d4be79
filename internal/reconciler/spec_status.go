package reconciler

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/frontmatter"
)

type specFrontmatter struct {
	Status string `yaml:"status"`
}

// parseFrontmatterStatus extracts a spec's status field from its YAML
// frontmatter. A missing or unparseable frontmatter block, or an
// unrecognized status value, yields "draft" — the conservative default
// that still lets the planner consider the spec.
func parseFrontmatterStatus(content string) domain.SpecFrontmatterStatus {
	var fm specFrontmatter
	if _, err := frontmatter.Parse(content, &fm); err != nil {
		return domain.SpecDraft
	}
	switch domain.SpecFrontmatterStatus(fm.Status) {
	case domain.SpecApproved:
		return domain.SpecApproved
	case domain.SpecDeprecated:
		return domain.SpecDeprecated
	default:
		return domain.SpecDraft
	}
}
