package ports

import (
    "context"

    "cakra/internal/domain"
)

// Orchestrator runs the full analysis pipeline for one URL.
type Orchestrator interface {
    Run(ctx context.Context, url string) (*domain.ScanRecord, error)
}

// Stage is the uniform capability contract every analysis stage satisfies.
// Analyze must be safe to call concurrently and must not mutate its input;
// the orchestrator hands each call its own copy. A per-call failure is an
// ordinary returned error; only Initialize failures are fatal.
type Stage interface {
    Name() string
    Initialize(ctx context.Context) error
    Analyze(ctx context.Context, input map[string]any) (map[string]any, error)
}
