package stages

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/stretchr/testify/require"
)

const gamblingPage = `<html>
<head><title>Slot Gacor Maxwin</title><meta name="description" content="judi online terpercaya"></head>
<body>
  <h1>Daftar judi slot online, jackpot besar!</h1>
  <p>Deposit via DANA 081234567890 atau rekening: 1234567890123 a.n. Operator.</p>
  <p>Taruhan bola parlay, casino live, togel hari ini.</p>
  <a href="http://mirror1.example.com">mirror</a>
  <a href="/internal">internal</a>
</body></html>`

func initStage(t *testing.T, s interface{ Initialize(context.Context) error }) {
    t.Helper()
    require.NoError(t, s.Initialize(context.Background()))
}

func TestScoutFetchesAndParses(t *testing.T) {
    t.Parallel()
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/html")
        _, _ = w.Write([]byte(gamblingPage))
    }))
    defer srv.Close()

    scout := NewScout(100, "cakra-test/1.0")
    initStage(t, scout)

    out, err := scout.Analyze(context.Background(), map[string]any{"url": srv.URL})
    require.NoError(t, err)
    require.Equal(t, "reachable", out["status"])
    require.Equal(t, "Slot Gacor Maxwin", out["title"])
    require.Contains(t, out["text"].(string), "Daftar judi slot")
    require.Equal(t, []string{"http://mirror1.example.com"}, out["links"])
}

func TestScoutErrorStatusIsFailure(t *testing.T) {
    t.Parallel()
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        http.Error(w, "gone", http.StatusNotFound)
    }))
    defer srv.Close()

    scout := NewScout(100, "cakra-test/1.0")
    initStage(t, scout)

    _, err := scout.Analyze(context.Background(), map[string]any{"url": srv.URL})
    require.Error(t, err)
    require.Contains(t, err.Error(), "status 404")
}

func TestScoutRejectsZeroRateAtInit(t *testing.T) {
    t.Parallel()
    require.Error(t, NewScout(0, "x").Initialize(context.Background()))
}

func TestAnalystClassifiesGambling(t *testing.T) {
    t.Parallel()
    analyst := NewContentAnalyst()
    initStage(t, analyst)

    out, err := analyst.Analyze(context.Background(), map[string]any{
        "url":   "http://example.com/bet",
        "title": "Slot Gacor Maxwin",
        "text":  "daftar judi slot online jackpot besar taruhan bola parlay casino live togel",
    })
    require.NoError(t, err)
    require.Equal(t, "gambling", out["classification"])
    require.Equal(t, out["classification"], out["category"])
    require.GreaterOrEqual(t, out["content_risk"].(int), 60)
    require.NotEmpty(t, out["matched_keywords"])
}

func TestAnalystSafeContent(t *testing.T) {
    t.Parallel()
    analyst := NewContentAnalyst()
    initStage(t, analyst)

    out, err := analyst.Analyze(context.Background(), map[string]any{
        "url":   "http://news.example.com",
        "title": "Weather report",
        "text":  "sunny skies expected across the region tomorrow",
    })
    require.NoError(t, err)
    require.Equal(t, "safe", out["classification"])
}

func TestAnalystEmptyInputFails(t *testing.T) {
    t.Parallel()
    analyst := NewContentAnalyst()
    initStage(t, analyst)
    _, err := analyst.Analyze(context.Background(), map[string]any{})
    require.Error(t, err)
}

func TestInvestigatorExtractsChannels(t *testing.T) {
    t.Parallel()
    inv := NewPaymentInvestigator()
    initStage(t, inv)

    out, err := inv.Analyze(context.Background(), map[string]any{
        "text": "Deposit via DANA 081234567890 atau rekening: 1234567890123 " +
            "BTC 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
    })
    require.NoError(t, err)
    channels := out["channels"].([]map[string]any)
    types := map[string]string{}
    for _, ch := range channels {
        types[ch["type"].(string)] = ch["identifier"].(string)
    }
    require.Equal(t, "081234567890", types["ewallet"])
    require.Equal(t, "1234567890123", types["bank_account"])
    require.Equal(t, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", types["crypto_wallet"])
    require.Equal(t, len(channels), out["count"])
}

func TestInvestigatorDeduplicates(t *testing.T) {
    t.Parallel()
    inv := NewPaymentInvestigator()
    initStage(t, inv)

    out, err := inv.Analyze(context.Background(), map[string]any{
        "text": "rekening: 1234567890123 ... rekening: 1234567890123",
    })
    require.NoError(t, err)
    channels := out["channels"].([]map[string]any)
    seen := 0
    for _, ch := range channels {
        if ch["type"] == "bank_account" {
            seen++
        }
    }
    require.Equal(t, 1, seen)
}

func TestMapperClusterIsStablePerRegistrableDomain(t *testing.T) {
    t.Parallel()
    mapper := NewNetworkMapper()
    initStage(t, mapper)

    a, err := mapper.Analyze(context.Background(), map[string]any{"url": "http://www.bet-site.example.com/x", "classification": "gambling"})
    require.NoError(t, err)
    b, err := mapper.Analyze(context.Background(), map[string]any{"url": "http://cdn.bet-site.example.com/y", "classification": "gambling"})
    require.NoError(t, err)
    require.Equal(t, a["cluster"], b["cluster"], "mirrors of one operator share a cluster")
    require.Equal(t, 8, a["risk_score"])

    c, err := mapper.Analyze(context.Background(), map[string]any{"url": "http://other.example.org"})
    require.NoError(t, err)
    require.NotEqual(t, a["cluster"], c["cluster"])
    require.Equal(t, 2, c["risk_score"])
}

func TestReporterSynthesizes(t *testing.T) {
    t.Parallel()
    rep := NewReporter()
    initStage(t, rep)

    out, err := rep.Analyze(context.Background(), map[string]any{
        "url":          "http://example.com/bet",
        "scout":        map[string]any{"status": "reachable"},
        "analyst":      map[string]any{"classification": "gambling", "content_risk": 80},
        "investigator": map[string]any{"count": 2},
        "mapper":       map[string]any{"cluster": "op-7", "risk_score": 8},
    })
    require.NoError(t, err)
    score := out["risk_score"].(int)
    require.GreaterOrEqual(t, score, 70)
    require.LessOrEqual(t, score, 100)
    require.Equal(t, "gambling", out["classification"])
    require.NotContains(t, out, "degraded_stages")
}

func TestReporterToleratesDegradedInput(t *testing.T) {
    t.Parallel()
    rep := NewReporter()
    initStage(t, rep)

    out, err := rep.Analyze(context.Background(), map[string]any{
        "url":          "http://example.com",
        "scout":        map[string]any{"status": "reachable"},
        "analyst":      map[string]any{"error": "classifier crashed"},
        "investigator": map[string]any{"count": 1},
        "mapper":       map[string]any{"error": "correlation backend down"},
    })
    require.NoError(t, err, "synthesis must run on degraded input")
    require.Contains(t, out, "risk_score")
    require.ElementsMatch(t, []string{"analyst", "mapper"}, out["degraded_stages"])
}
