package stages

import (
    "context"
    "fmt"
    "regexp"

    "cakra/internal/domain"
)

// channelPattern describes one recognizable payment identifier shape.
type channelPattern struct {
    channelType string
    expr        string
    riskScore   int
    confidence  int

    re *regexp.Regexp
}

// PaymentInvestigator extracts payment identifiers (accounts, wallets,
// merchant codes) from page text. Patterns are compiled once at
// initialization; a bad pattern is a fatal init error, not a per-scan one.
type PaymentInvestigator struct {
    patterns []*channelPattern
}

func NewPaymentInvestigator() *PaymentInvestigator {
    return &PaymentInvestigator{patterns: []*channelPattern{
        {channelType: "crypto_wallet", expr: `\b(?:bc1[a-z0-9]{25,39}|[13][a-km-zA-HJ-NP-Z1-9]{25,34}|0x[a-fA-F0-9]{40})\b`, riskScore: 8, confidence: 90},
        {channelType: "ewallet", expr: `(?i)\b(?:ovo|dana|gopay|linkaja|shopeepay)[\s:.-]{0,3}(08\d{8,11})\b`, riskScore: 6, confidence: 80},
        {channelType: "bank_account", expr: `(?i)\b(?:rek(?:ening)?|acc(?:ount)?|no\.?\s*rek)[\s:.-]{0,3}(\d{10,16})\b`, riskScore: 7, confidence: 85},
        {channelType: "phone", expr: `\b(?:\+62|62|08)\d{8,12}\b`, riskScore: 4, confidence: 60},
    }}
}

func (v *PaymentInvestigator) Name() string { return domain.StageInvestigator }

func (v *PaymentInvestigator) Initialize(ctx context.Context) error {
    for _, p := range v.patterns {
        re, err := regexp.Compile(p.expr)
        if err != nil {
            return fmt.Errorf("compile %s pattern: %w", p.channelType, err)
        }
        p.re = re
    }
    return nil
}

func (v *PaymentInvestigator) Analyze(ctx context.Context, input map[string]any) (map[string]any, error) {
    text, _ := input["text"].(string)
    title, _ := input["title"].(string)
    if text == "" && title == "" {
        return nil, fmt.Errorf("no content to inspect")
    }
    corpus := title + " " + text

    seen := map[string]bool{}
    channels := []map[string]any{}
    for _, p := range v.patterns {
        for _, m := range p.re.FindAllStringSubmatch(corpus, -1) {
            identifier := m[0]
            if len(m) > 1 && m[1] != "" {
                identifier = m[1]
            }
            key := p.channelType + ":" + identifier
            if seen[key] {
                continue
            }
            seen[key] = true
            channels = append(channels, map[string]any{
                "identifier": identifier,
                "type":       p.channelType,
                "risk_score": p.riskScore,
                "confidence": p.confidence,
            })
        }
    }

    return map[string]any{
        "channels": channels,
        "count":    len(channels),
    }, nil
}
