package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/frontmatter"
)

// Model is the closed set of model aliases an agent definition may
// declare (§4.H step 3).
type Model string

const (
	ModelSonnet  Model = "sonnet"
	ModelOpus    Model = "opus"
	ModelHaiku   Model = "haiku"
	ModelInherit Model = "inherit"
)

// Definition is a role's parsed `.claude/agents/<role>.md` file: YAML
// frontmatter plus the markdown body used verbatim as the system prompt.
type Definition struct {
	Description     string   `yaml:"description"`
	Tools           []string `yaml:"tools"`
	DisallowedTools []string `yaml:"disallowedTools"`
	Model           Model    `yaml:"model"`
	MaxTurns        int      `yaml:"maxTurns"`
	SystemPrompt    string   `yaml:"-"`
}

// LoadDefinition reads and parses <repoRoot>/.claude/agents/<role>.md.
func LoadDefinition(repoRoot string, role domain.AgentRole) (*Definition, error) {
	path := filepath.Join(repoRoot, ".claude", "agents", string(role)+".md")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent definition %s: %w", path, err)
	}

	var def Definition
	body, err := frontmatter.Parse(string(content), &def)
	if err != nil {
		return nil, fmt.Errorf("parse agent definition %s: %w", path, err)
	}
	def.SystemPrompt = body
	if def.Model == "" {
		def.Model = ModelInherit
	}
	return &def, nil
}
