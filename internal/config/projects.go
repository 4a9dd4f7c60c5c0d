package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/edvin/hostbackup/internal/model"
)

var validate = validator.New()

var slugRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

func init() {
	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	})
}

// ProjectsFile is the on-disk layout of the projects configuration.
type ProjectsFile struct {
	Defaults struct {
		LocalRoot      string `yaml:"local_root"`
		RetentionYears int    `yaml:"retention_years"`
	} `yaml:"defaults"`
	Projects []model.Project `yaml:"projects"`
}

// Projects is a validated, immutable set of project configurations.
type Projects struct {
	byID map[string]model.Project
}

// LoadProjects reads and validates a YAML projects file.
func LoadProjects(path string) (*Projects, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read projects file: %w", err)
	}
	return ParseProjects(data)
}

// ParseProjects parses and validates YAML project configuration.
func ParseProjects(data []byte) (*Projects, error) {
	var file ProjectsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse projects file: %w", err)
	}

	projects := &Projects{byID: make(map[string]model.Project, len(file.Projects))}
	for i, p := range file.Projects {
		if p.LocalRoot == "" {
			p.LocalRoot = file.Defaults.LocalRoot
		}
		if p.RetentionYears == 0 {
			p.RetentionYears = file.Defaults.RetentionYears
		}
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("project %d (%s): validation error: %w", i, p.ID, err)
		}
		if _, dup := projects.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate project id %q", p.ID)
		}
		projects.byID[p.ID] = p
	}
	return projects, nil
}

// NewProjects builds a Projects set from already-validated configurations.
func NewProjects(list ...model.Project) *Projects {
	projects := &Projects{byID: make(map[string]model.Project, len(list))}
	for _, p := range list {
		projects.byID[p.ID] = p
	}
	return projects
}

// Get returns the project with the given ID.
func (p *Projects) Get(id string) (model.Project, bool) {
	project, ok := p.byID[id]
	return project, ok
}

// IDs returns all project IDs in sorted order.
func (p *Projects) IDs() []string {
	ids := make([]string, 0, len(p.byID))
	for id := range p.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every project, sorted by ID.
func (p *Projects) All() []model.Project {
	ids := p.IDs()
	out := make([]model.Project, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.byID[id])
	}
	return out
}
