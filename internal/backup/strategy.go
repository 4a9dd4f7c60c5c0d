package backup

import (
	"context"
	"fmt"
	"sort"

	"github.com/edvin/hostbackup/internal/model"
)

// Strategy produces and restores backup artifacts for one project type.
//
// Backup writes a complete artifact into scratchDir and returns its path.
// The same source state must yield a byte-identical artifact. Restore applies
// an artifact and must be idempotent. Implementations remove their own
// intermediate files on every path; the caller owns scratchDir.
type Strategy interface {
	Backup(ctx context.Context, project model.Project, scratchDir string) (string, error)
	Restore(ctx context.Context, artifactPath string, project model.Project, opts RestoreOptions) error
	// Extension is appended to backup names, e.g. ".tar.gz".
	Extension() string
	// ScratchTarget returns a restore target inside dir that does not touch
	// the project's live data. Used for test restores.
	ScratchTarget(project model.Project, dir string) string
}

// ScratchCleaner is implemented by strategies whose scratch target outlives
// the scratch directory, such as a database on a shared server. The
// coordinator calls it once a test restore into a scratch target is over,
// whether or not the restore succeeded.
type ScratchCleaner interface {
	CleanupScratch(ctx context.Context, project model.Project, target string) error
}

// RestoreOptions tune a restore.
type RestoreOptions struct {
	// Target overrides the restore destination. Empty means the project's
	// configured source.
	Target string
}

// Registry maps project types to strategies. The set is fixed at startup.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds s for projectType. Registering a type twice panics.
func (r *Registry) Register(projectType string, s Strategy) {
	if _, dup := r.strategies[projectType]; dup {
		panic(fmt.Sprintf("backup: strategy for %q registered twice", projectType))
	}
	r.strategies[projectType] = s
}

// Get returns the strategy for the project's type or a *ConfigurationError.
func (r *Registry) Get(project model.Project) (Strategy, error) {
	s, ok := r.strategies[project.Type]
	if !ok {
		return nil, &ConfigurationError{
			ProjectID: project.ID,
			Reason:    fmt.Sprintf("no backup strategy registered for project type %q", project.Type),
		}
	}
	return s, nil
}

// Types returns the registered project types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
