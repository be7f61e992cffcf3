// Package skill discovers skills: directories under "skills/" each holding
// a SKILL.md with YAML frontmatter {name, description}, per spec.md's
// GLOSSARY entry. Discovered skills are advertised in the system prompt and
// fetchable in full by name through the "skill" tool.
package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is one discovered skill directory.
type Skill struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Path        string `yaml:"-" json:"-"` // directory containing SKILL.md
	Body        string `yaml:"-" json:"-"` // markdown content after frontmatter
}

// Catalog discovers skills under a skills directory. Nothing is cached:
// every List or Get call reads the directory again.
type Catalog struct {
	skillsDir string
}

// NewCatalog creates a Catalog rooted at skillsDir (typically
// "<workspace>/skills" or "<workspace>/<channelId>/skills").
func NewCatalog(skillsDir string) *Catalog {
	return &Catalog{skillsDir: skillsDir}
}

// List discovers every skill directory containing a valid SKILL.md. Entries
// with malformed frontmatter are skipped rather than failing the whole scan.
func (c *Catalog) List() []*Skill {
	entries, err := os.ReadDir(c.skillsDir)
	if err != nil {
		return nil
	}

	var skills []*Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(c.skillsDir, entry.Name())
		s, err := loadSkillFile(dir)
		if err != nil {
			continue
		}
		if s.Name == "" {
			s.Name = entry.Name()
		}
		skills = append(skills, s)
	}
	return skills
}

// Get loads a single named skill's full SKILL.md body.
func (c *Catalog) Get(name string) (*Skill, error) {
	dir := filepath.Join(c.skillsDir, name)
	s, err := loadSkillFile(dir)
	if err != nil {
		return nil, fmt.Errorf("skill %q: %w", name, err)
	}
	if s.Name == "" {
		s.Name = name
	}
	return s, nil
}

func loadSkillFile(dir string) (*Skill, error) {
	path := filepath.Join(dir, "SKILL.md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	front, body := splitFrontmatter(string(raw))

	s := &Skill{Path: dir, Body: body}
	if front != "" {
		if err := yaml.Unmarshal([]byte(front), s); err != nil {
			return nil, fmt.Errorf("parse frontmatter: %w", err)
		}
	}
	return s, nil
}

// splitFrontmatter separates a leading "---\n...\n---\n" YAML block from the
// rest of the markdown body. Returns ("", content) when no frontmatter
// fence is present.
func splitFrontmatter(content string) (frontmatter, body string) {
	const fence = "---"
	if !strings.HasPrefix(content, fence) {
		return "", content
	}

	rest := content[len(fence):]
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n"+fence)
	if idx == -1 {
		return "", content
	}

	frontmatter = rest[:idx]
	body = strings.TrimPrefix(rest[idx+1+len(fence):], "\n")
	return frontmatter, body
}

// CatalogSummary renders a short system-prompt section listing every
// discovered skill's name and description, per spec.md §4.6.
func CatalogSummary(skills []*Skill) string {
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Available Skills\n")
	for _, s := range skills {
		fmt.Fprintf(&b, "- **%s**: %s\n", s.Name, s.Description)
	}
	return b.String()
}
