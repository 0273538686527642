package pipeline

import (
    "context"
    "log"
    "maps"
    "sync"
    "time"

    "cakra/internal/domain"
    "cakra/internal/ports"
)

// Pipeline executes the five-stage dependency graph for one URL:
//
//    scout -> {analyst, investigator} -> mapper -> reporter -> store
//
// Analyst and investigator fan out concurrently off the scout output and are
// joined before the mapper runs. Only a scout failure or a persistence
// failure is surfaced to the caller; every other stage failure is captured
// into the composite record.
type Pipeline struct {
    reg     *Registry
    store   ports.ScanStore
    timeout time.Duration
}

func New(reg *Registry, store ports.ScanStore, stageTimeout time.Duration) *Pipeline {
    return &Pipeline{reg: reg, store: store, timeout: stageTimeout}
}

func (p *Pipeline) Run(ctx context.Context, rawurl string) (*domain.ScanRecord, error) {
    if err := ValidateURL(rawurl); err != nil {
        return nil, err
    }

    scout := p.invoke(ctx, domain.StageScout, map[string]any{"url": rawurl})
    if !scout.OK() {
        // Fast fail: downstream stages structurally require scout output.
        // The partial record is still persisted with the failure populated.
        rec := &domain.ScanRecord{
            URL:             rawurl,
            Timestamp:       time.Now().UTC(),
            ScoutAnalysis:   scout,
            ContentAnalysis: domain.Skipped(),
            PaymentAnalysis: domain.Skipped(),
            NetworkAnalysis: domain.Skipped(),
            Report:          domain.Skipped(),
        }
        if _, err := p.store.AddScanResult(ctx, rec); err != nil {
            return nil, err
        }
        return nil, &domain.StageError{Stage: domain.StageScout, Cause: outcomeErr(scout)}
    }

    // Barrier fan-out: both branches always run to settlement; a failure in
    // one never cancels the other.
    var analyst, payment domain.StageOutcome
    var wg sync.WaitGroup
    wg.Add(2)
    go func() {
        defer wg.Done()
        analyst = p.invoke(ctx, domain.StageAnalyst, scout.Payload)
    }()
    go func() {
        defer wg.Done()
        payment = p.invoke(ctx, domain.StageInvestigator, scout.Payload)
    }()
    wg.Wait()

    // Mapper consumes scout ∪ analyst output; analyst keys win on conflict.
    mapper := p.invoke(ctx, domain.StageMapper, merge(scout.Payload, analyst.Payload))

    // Synthesis always runs once scout succeeded, on degraded input if
    // needed, so a partial pipeline still yields a report.
    report := p.invoke(ctx, domain.StageReporter, map[string]any{
        "url":          rawurl,
        domain.StageScout:        outcomeInput(scout),
        domain.StageAnalyst:      outcomeInput(analyst),
        domain.StageInvestigator: outcomeInput(payment),
        domain.StageMapper:       outcomeInput(mapper),
    })

    rec := &domain.ScanRecord{
        URL:             rawurl,
        Timestamp:       time.Now().UTC(),
        ScoutAnalysis:   scout,
        ContentAnalysis: analyst,
        PaymentAnalysis: payment,
        NetworkAnalysis: mapper,
        Report:          report,
        Classification:  classification(analyst),
    }
    if report.OK() {
        if score, ok := asInt(report.Payload["risk_score"]); ok {
            rec.RiskScore = &score
        }
    }

    stored, err := p.store.AddScanResult(ctx, rec)
    if err != nil {
        return nil, err
    }
    p.fuse(ctx, stored)
    return stored, nil
}

// invoke runs one stage with the configured timeout and tags the result.
// The stage receives its own copy of the input; inputs are read-only by
// contract.
func (p *Pipeline) invoke(ctx context.Context, name string, input map[string]any) domain.StageOutcome {
    stage := p.reg.Get(name)
    if p.timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, p.timeout)
        defer cancel()
    }
    payload, err := stage.Analyze(ctx, maps.Clone(input))
    if err != nil {
        return domain.Failed(err)
    }
    return domain.Succeeded(payload)
}

// merge overlays over onto base; keys from the later pipeline stage win.
func merge(base, over map[string]any) map[string]any {
    out := make(map[string]any, len(base)+len(over))
    maps.Copy(out, base)
    maps.Copy(out, over)
    return out
}

// outcomeInput renders an outcome as reporter input, keeping the failure
// indicator visible to synthesis.
func outcomeInput(o domain.StageOutcome) map[string]any {
    if o.OK() {
        return o.Payload
    }
    return map[string]any{"error": o.Error}
}

func outcomeErr(o domain.StageOutcome) error {
    return errCause(o.Error)
}

type errCause string

func (e errCause) Error() string { return string(e) }

func classification(analyst domain.StageOutcome) string {
    if !analyst.OK() {
        return ""
    }
    for _, key := range []string{"classification", "category"} {
        if v, ok := analyst.Payload[key].(string); ok {
            return v
        }
    }
    return ""
}

// asInt tolerates the numeric types a payload may carry after a JSON
// round trip.
func asInt(v any) (int, bool) {
    switch n := v.(type) {
    case int:
        return n, true
    case int64:
        return int(n), true
    case float64:
        return int(n), true
    case float32:
        return int(n), true
    }
    return 0, false
}

// logf is swapped out by tests that assert on fusion warnings.
var logf = log.Printf
