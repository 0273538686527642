package stages

import (
    "context"
    "fmt"
    "strings"

    "cakra/internal/domain"
)

// Gambling vocabulary seen across Indonesian-language gambling/fraud sites
// plus the usual international terms. Hits are weighted, not binary: the
// hard terms are near-certain indicators while soft terms only raise
// suspicion in numbers.
var (
    hardTerms = []string{
        "judi", "togel", "slot gacor", "maxwin", "kasino", "taruhan",
        "casino", "jackpot", "sportsbook", "parlay", "baccarat", "roulette",
    }
    softTerms = []string{
        "slot", "poker", "bet", "bonus new member", "deposit pulsa",
        "wager", "odds", "spin", "freebet", "rtp",
    }
)

// ContentAnalyst classifies fetched content as gambling, suspicious, or
// safe, with a 0-100 content risk rate.
type ContentAnalyst struct {
    gamblingMin   int
    suspiciousMin int
}

func NewContentAnalyst() *ContentAnalyst {
    return &ContentAnalyst{gamblingMin: 60, suspiciousMin: 25}
}

func (a *ContentAnalyst) Name() string { return domain.StageAnalyst }

func (a *ContentAnalyst) Initialize(ctx context.Context) error { return nil }

func (a *ContentAnalyst) Analyze(ctx context.Context, input map[string]any) (map[string]any, error) {
    text, _ := input["text"].(string)
    title, _ := input["title"].(string)
    url, _ := input["url"].(string)
    corpus := strings.ToLower(strings.Join([]string{url, title, text}, " "))
    if strings.TrimSpace(corpus) == "" {
        return nil, fmt.Errorf("no content to classify")
    }

    var matched []string
    score := 0
    for _, term := range hardTerms {
        if n := strings.Count(corpus, term); n > 0 {
            matched = append(matched, term)
            score += 20 * min(n, 3)
        }
    }
    for _, term := range softTerms {
        if n := strings.Count(corpus, term); n > 0 {
            matched = append(matched, term)
            score += 5 * min(n, 4)
        }
    }
    if score > 100 {
        score = 100
    }

    classification := "safe"
    switch {
    case score >= a.gamblingMin:
        classification = "gambling"
    case score >= a.suspiciousMin:
        classification = "suspicious"
    }

    return map[string]any{
        "classification":   classification,
        "category":         classification,
        "content_risk":     score,
        "matched_keywords": matched,
        "keyword_hits":     len(matched),
    }, nil
}
