package pipeline

import (
    "context"
    "fmt"
    "time"

    "cakra/internal/domain"
)

// fuse folds a persisted record's stage findings into the shared corpus:
// payment identifiers become (or extend) PaymentChannel rows and the
// mapper's correlation becomes an OperatorCluster. The record itself is
// already durable at this point, so fusion failures are logged and the scan
// still succeeds.
func (p *Pipeline) fuse(ctx context.Context, rec *domain.ScanRecord) {
    channels := extractChannels(rec)
    members := []string{rec.URL}
    maxRisk := 0
    for _, ch := range channels {
        stored, err := p.store.UpsertPaymentChannel(ctx, ch)
        if err != nil {
            logf("fuse: upsert channel %s/%s: %v", ch.ChannelType, ch.Identifier, err)
            continue
        }
        members = append(members, channelRef(stored.ChannelType, stored.Identifier))
        if stored.RiskScore > maxRisk { maxRisk = stored.RiskScore }
    }

    if !rec.NetworkAnalysis.OK() {
        return
    }
    clusterID, ok := rec.NetworkAnalysis.Payload["cluster"].(string)
    if !ok || clusterID == "" {
        return
    }
    if risk, ok := asInt(rec.NetworkAnalysis.Payload["risk_score"]); ok && risk > maxRisk {
        maxRisk = risk
    }
    cl := domain.OperatorCluster{ClusterID: clusterID, Members: members, RiskScore: maxRisk}
    if _, err := p.store.UpsertOperatorCluster(ctx, cl); err != nil {
        logf("fuse: upsert cluster %s: %v", clusterID, err)
    }
}

func channelRef(channelType, identifier string) string {
    return fmt.Sprintf("%s:%s", channelType, identifier)
}

// extractChannels reads the investigator payload's channel findings,
// tolerating both in-process and JSON-decoded shapes.
func extractChannels(rec *domain.ScanRecord) []domain.PaymentChannel {
    if !rec.PaymentAnalysis.OK() {
        return nil
    }
    raw, ok := rec.PaymentAnalysis.Payload["channels"]
    if !ok {
        return nil
    }
    var items []map[string]any
    switch v := raw.(type) {
    case []map[string]any:
        items = v
    case []any:
        for _, e := range v {
            if m, ok := e.(map[string]any); ok {
                items = append(items, m)
            }
        }
    }

    now := time.Now().UTC()
    var out []domain.PaymentChannel
    for _, m := range items {
        identifier, _ := m["identifier"].(string)
        channelType, _ := m["type"].(string)
        if identifier == "" || channelType == "" {
            continue
        }
        ch := domain.PaymentChannel{
            Identifier:     identifier,
            ChannelType:    channelType,
            AssociatedURLs: []string{rec.URL},
            FirstDetected:  now,
            LastUpdated:    now,
            DetectionCount: 1,
            Confidence:     85,
        }
        if p, ok := m["provider"].(string); ok {
            ch.Provider = p
        }
        if risk, ok := asInt(m["risk_score"]); ok {
            ch.RiskScore = risk
        }
        if conf, ok := asInt(m["confidence"]); ok {
            ch.Confidence = conf
        }
        out = append(out, ch)
    }
    return out
}
