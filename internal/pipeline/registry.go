package pipeline

import (
    "context"
    "fmt"

    "cakra/internal/domain"
    "cakra/internal/ports"
)

// required is the full stage set; the pipeline cannot run without all five.
var required = []string{
    domain.StageScout,
    domain.StageAnalyst,
    domain.StageInvestigator,
    domain.StageMapper,
    domain.StageReporter,
}

// Registry holds the analysis stages keyed by name.
type Registry struct {
    stages map[string]ports.Stage
}

func NewRegistry(stages ...ports.Stage) (*Registry, error) {
    r := &Registry{stages: make(map[string]ports.Stage, len(stages))}
    for _, s := range stages {
        if _, dup := r.stages[s.Name()]; dup {
            return nil, fmt.Errorf("duplicate stage %q", s.Name())
        }
        r.stages[s.Name()] = s
    }
    for _, name := range required {
        if _, ok := r.stages[name]; !ok {
            return nil, fmt.Errorf("missing stage %q", name)
        }
    }
    return r, nil
}

func (r *Registry) Get(name string) ports.Stage { return r.stages[name] }

// InitializeAll runs each stage's one-time initialization. Any failure is
// fatal for system readiness: no scan may be accepted afterwards.
func (r *Registry) InitializeAll(ctx context.Context) error {
    for _, name := range required {
        if err := r.stages[name].Initialize(ctx); err != nil {
            return &domain.InitError{Stage: name, Cause: err}
        }
    }
    return nil
}
