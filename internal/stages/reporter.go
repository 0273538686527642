package stages

import (
    "context"
    "fmt"
    "time"

    "cakra/internal/domain"
)

// Reporter synthesizes the composite risk report. It always produces a
// report, even when upstream stages failed: degraded stages contribute
// nothing to the score and are listed so the consumer knows what is missing.
type Reporter struct{}

func NewReporter() *Reporter { return &Reporter{} }

func (r *Reporter) Name() string { return domain.StageReporter }

func (r *Reporter) Initialize(ctx context.Context) error { return nil }

func (r *Reporter) Analyze(ctx context.Context, input map[string]any) (map[string]any, error) {
    var degraded []string
    payloadOf := func(stage string) map[string]any {
        p, _ := input[stage].(map[string]any)
        if p == nil {
            degraded = append(degraded, stage)
            return nil
        }
        if _, failed := p["error"]; failed {
            degraded = append(degraded, stage)
            return nil
        }
        return p
    }

    analyst := payloadOf(domain.StageAnalyst)
    investigator := payloadOf(domain.StageInvestigator)
    mapper := payloadOf(domain.StageMapper)

    // Weighted synthesis: content classification dominates, payment
    // evidence and operator correlation corroborate.
    contentRisk := numAt(analyst, "content_risk")           // 0-100
    channelCount := numAt(investigator, "count")            // raw count
    operatorRisk := numAt(mapper, "risk_score")             // 0-10

    paymentRisk := min(channelCount*25, 100)
    score := (contentRisk*5 + paymentRisk*3 + operatorRisk*10*2) / 10
    if score > 100 {
        score = 100
    }

    classification, _ := stringAt(analyst, "classification")
    if classification == "" {
        switch {
        case score >= 70:
            classification = "gambling"
        case score >= 30:
            classification = "suspicious"
        default:
            classification = "safe"
        }
    }

    url, _ := input["url"].(string)
    summary := fmt.Sprintf("%s classified %s with risk %d/100", url, classification, score)
    if len(degraded) > 0 {
        summary += fmt.Sprintf(" (degraded: %v)", degraded)
    }

    out := map[string]any{
        "risk_score":     score,
        "classification": classification,
        "summary":        summary,
        "generated_at":   time.Now().UTC().Format(time.RFC3339),
    }
    if len(degraded) > 0 {
        out["degraded_stages"] = degraded
    }
    return out, nil
}

func numAt(m map[string]any, key string) int {
    if m == nil {
        return 0
    }
    switch n := m[key].(type) {
    case int:
        return n
    case int64:
        return int(n)
    case float64:
        return int(n)
    }
    return 0
}

func stringAt(m map[string]any, key string) (string, bool) {
    if m == nil {
        return "", false
    }
    s, ok := m[key].(string)
    return s, ok
}
