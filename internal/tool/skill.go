package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/motherhost/mother/internal/skill"
)

// Skill exposes the discovered skill catalog to the model: listing names
// and descriptions, and fetching a named skill's full SKILL.md body on
// demand. Additive relative to the teacher, which had no skill discovery
// tool of its own — grounded on internal/skill.Catalog.
type Skill struct {
	catalog *skill.Catalog
}

// NewSkill creates a skill tool backed by catalog.
func NewSkill(catalog *skill.Catalog) *Skill {
	return &Skill{catalog: catalog}
}

func (s *Skill) Name() string { return "skill" }

func (s *Skill) Label(args json.RawMessage) string {
	var p skillParams
	_ = json.Unmarshal(args, &p)
	if p.Name == "" {
		return "List skills"
	}
	return fmt.Sprintf("Load skill %s", p.Name)
}

func (s *Skill) Description() string {
	return `List available skills, or fetch the full SKILL.md body for one skill by name.
Call with no name to list; call with a name to load its instructions.`
}

func (s *Skill) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {
				"type": "string",
				"description": "Name of the skill to load; omit to list all available skills"
			}
		}
	}`)
}

type skillParams struct {
	Name string `json:"name"`
}

func (s *Skill) Execute(ctx context.Context, id string, args json.RawMessage) (*Result, error) {
	var p skillParams
	if err := json.Unmarshal(args, &p); err != nil {
		return ErrorResult(fmt.Sprintf("invalid params: %v", err)), nil
	}

	if p.Name == "" {
		skills := s.catalog.List()
		if len(skills) == 0 {
			return TextResult("no skills available"), nil
		}
		return TextResult(skill.CatalogSummary(skills)), nil
	}

	sk, err := s.catalog.Get(p.Name)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return TextResult(sk.Body), nil
}
