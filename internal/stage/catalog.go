package stage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
)

// catalogFile is the on-disk YAML schema of the stage catalog.
type catalogFile struct {
	Stages []catalogStage `yaml:"stages"`
}

type catalogStage struct {
	ID                    string                 `yaml:"id"`
	Name                  string                 `yaml:"name"`
	SequenceOrder         int                    `yaml:"sequence_order"`
	Department            string                 `yaml:"department"`
	EstimatedDurationDays int                    `yaml:"estimated_duration_days"`
	RequiredDocuments     []string               `yaml:"required_documents"`
	AutoAssignment        *catalogAutoAssignment `yaml:"auto_assignment"`
	Checklist             []catalogChecklistItem `yaml:"checklist"`
	Special               bool                   `yaml:"special"`
}

type catalogAutoAssignment struct {
	Role       string  `yaml:"role"`
	Department *string `yaml:"department"`
}

type catalogChecklistItem struct {
	ID           string `yaml:"id"`
	Label        string `yaml:"label"`
	Required     bool   `yaml:"required"`
	DocumentType string `yaml:"document_type"`
}

// LoadCatalog reads the stage catalog from a YAML file and builds a
// validated registry.
func LoadCatalog(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse stage catalog: %w", err)
	}

	stages := make([]*Stage, 0, len(file.Stages))
	for _, cs := range file.Stages {
		s := &Stage{
			ID:                    ID(cs.ID),
			Name:                  cs.Name,
			SequenceOrder:         cs.SequenceOrder,
			Department:            cs.Department,
			EstimatedDurationDays: cs.EstimatedDurationDays,
			RequiredDocuments:     cs.RequiredDocuments,
			Special:               cs.Special,
		}

		// An unparseable assignment rule means "no auto-assignment", but an
		// unknown role in the main catalog is a config error worth failing on.
		if cs.AutoAssignment != nil {
			role, ok := auth.ParseRole(cs.AutoAssignment.Role)
			if !ok {
				return nil, errors.InvalidInput("stage catalog",
					fmt.Sprintf("stage %s: unknown auto-assignment role %q", cs.ID, cs.AutoAssignment.Role))
			}
			s.AutoAssignment = &AutoAssignRule{
				Role:       role,
				Department: cs.AutoAssignment.Department,
			}
		}

		seen := make(map[string]bool, len(cs.Checklist))
		for _, item := range cs.Checklist {
			if item.ID == "" {
				return nil, errors.InvalidInput("stage catalog",
					fmt.Sprintf("stage %s: checklist item with empty id", cs.ID))
			}
			if seen[item.ID] {
				return nil, errors.InvalidInput("stage catalog",
					fmt.Sprintf("stage %s: duplicate checklist item %s", cs.ID, item.ID))
			}
			seen[item.ID] = true
			s.Checklist = append(s.Checklist, ChecklistItem{
				ID:           item.ID,
				Label:        item.Label,
				Required:     item.Required,
				DocumentType: item.DocumentType,
			})
		}

		stages = append(stages, s)
	}

	return NewRegistry(stages)
}
