package team

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/statefs"
	"github.com/Iron-Ham/crew/internal/taskstore"
)

// Manifest is a YAML description of a team to create:
//
//	team: alpha
//	leader: lead
//	policy:
//	  max_workers: 4
//	  on_fix_exhausted: fail
//	workers:
//	  - name: w1
//	    role: implementer
//	tasks:
//	  - id: build
//	    description: compile everything
//	  - id: test
//	    description: run the suite
//	    depends_on: [build]
type Manifest struct {
	Team    string         `yaml:"team"`
	Leader  string         `yaml:"leader"`
	Policy  Policy         `yaml:"policy"`
	Workers []Worker       `yaml:"workers"`
	Tasks   []ManifestTask `yaml:"tasks"`
}

// ManifestTask seeds one task.
type ManifestTask struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	DependsOn   []string `yaml:"depends_on"`
	Priority    int      `yaml:"priority"`
}

// Task converts the seed to a pending task.
func (t ManifestTask) Task() taskstore.Task {
	return taskstore.Task{
		ID:          t.ID,
		Description: t.Description,
		DependsOn:   t.DependsOn,
		Priority:    t.Priority,
	}
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes a manifest, rejecting unknown keys, and checks that
// names are valid, unique, and that task dependencies resolve within it.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", crewerrors.ErrInvalidInput, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if err := statefs.ValidateName("team", m.Team); err != nil {
		return err
	}
	ids := make(map[string]bool, len(m.Tasks))
	for _, t := range m.Tasks {
		if err := statefs.ValidateName("task", t.ID); err != nil {
			return err
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate task %q", t.ID)
		}
		ids[t.ID] = true
	}
	for _, t := range m.Tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}
	return nil
}

// Config returns the team config the manifest describes, ready for Init.
func (m *Manifest) Config() Config {
	workers := make([]Worker, len(m.Workers))
	copy(workers, m.Workers)
	return Config{
		Name:    m.Team,
		Leader:  m.Leader,
		Workers: workers,
		Policy:  NormalizePolicy(m.Policy),
	}
}
