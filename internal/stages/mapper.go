package stages

import (
    "context"
    "fmt"
    "hash/fnv"
    "net/url"

    "golang.org/x/net/publicsuffix"

    "cakra/internal/domain"
)

// NetworkMapper correlates a scan to an operator cluster. Sites sharing a
// registrable domain (eTLD+1) collapse into the same cluster id, so repeat
// scans of one operator's mirrors accumulate in one place.
type NetworkMapper struct{}

func NewNetworkMapper() *NetworkMapper { return &NetworkMapper{} }

func (m *NetworkMapper) Name() string { return domain.StageMapper }

func (m *NetworkMapper) Initialize(ctx context.Context) error { return nil }

func (m *NetworkMapper) Analyze(ctx context.Context, input map[string]any) (map[string]any, error) {
    raw, _ := input["url"].(string)
    if raw == "" {
        return nil, fmt.Errorf("missing url")
    }
    u, err := url.Parse(raw)
    if err != nil {
        return nil, fmt.Errorf("parse url: %w", err)
    }
    host := u.Hostname()
    registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
    if err != nil {
        registrable = host
    }

    risk := 2
    if c, _ := input["classification"].(string); c == "gambling" {
        risk = 8
    } else if c == "suspicious" {
        risk = 5
    }

    h := fnv.New32a()
    h.Write([]byte(registrable))
    return map[string]any{
        "cluster":         fmt.Sprintf("op-%08x", h.Sum32()),
        "operator_domain": registrable,
        "risk_score":      risk,
    }, nil
}
