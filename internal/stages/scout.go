// Package stages provides the default analysis stage set behind the uniform
// Stage contract. Each stage is replaceable in isolation; the pipeline only
// sees the contract.
package stages

import (
    "context"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/PuerkitoBio/goquery"
    "golang.org/x/time/rate"

    "cakra/internal/domain"
)

const (
    maxTextBytes = 20000
    maxLinks     = 100
)

// Scout performs reconnaissance: it fetches the target page and extracts the
// raw material every downstream stage works from. Outbound requests are rate
// limited so a burst of submissions cannot hammer a target.
type Scout struct {
    fetchRate float64
    userAgent string

    client  *http.Client
    limiter *rate.Limiter
}

func NewScout(fetchRate float64, userAgent string) *Scout {
    return &Scout{fetchRate: fetchRate, userAgent: userAgent}
}

func (s *Scout) Name() string { return domain.StageScout }

func (s *Scout) Initialize(ctx context.Context) error {
    if s.fetchRate <= 0 {
        return fmt.Errorf("fetch rate must be positive, got %g", s.fetchRate)
    }
    s.limiter = rate.NewLimiter(rate.Limit(s.fetchRate), 1)
    s.client = &http.Client{Timeout: 20 * time.Second}
    return nil
}

func (s *Scout) Analyze(ctx context.Context, input map[string]any) (map[string]any, error) {
    target, _ := input["url"].(string)
    if target == "" {
        return nil, fmt.Errorf("missing url")
    }
    if err := s.limiter.Wait(ctx); err != nil {
        return nil, err
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
    if err != nil {
        return nil, err
    }
    req.Header.Set("User-Agent", s.userAgent)
    resp, err := s.client.Do(req)
    if err != nil {
        return nil, fmt.Errorf("fetch %s: %w", target, err)
    }
    defer resp.Body.Close()
    if resp.StatusCode >= 400 {
        return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
    }

    doc, err := goquery.NewDocumentFromReader(resp.Body)
    if err != nil {
        return nil, fmt.Errorf("parse %s: %w", target, err)
    }

    text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
    if len(text) > maxTextBytes {
        text = text[:maxTextBytes]
    }
    var links []string
    doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
        href, _ := sel.Attr("href")
        if strings.HasPrefix(href, "http") {
            links = append(links, href)
        }
        return len(links) < maxLinks
    })
    description, _ := doc.Find(`meta[name="description"]`).Attr("content")

    return map[string]any{
        "url":         target,
        "status":      "reachable",
        "status_code": resp.StatusCode,
        "title":       strings.TrimSpace(doc.Find("title").First().Text()),
        "description": description,
        "text":        text,
        "links":       links,
    }, nil
}
