package memory

import (
    "context"
    "fmt"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "cakra/internal/domain"
)

func intp(v int) *int { return &v }

func record(url string, risk *int, ts time.Time) *domain.ScanRecord {
    return &domain.ScanRecord{
        URL:             url,
        Timestamp:       ts,
        RiskScore:       risk,
        ScoutAnalysis:   domain.Succeeded(map[string]any{"status": "reachable"}),
        ContentAnalysis: domain.Succeeded(map[string]any{"classification": "gambling"}),
        PaymentAnalysis: domain.Succeeded(map[string]any{"count": 0}),
        NetworkAnalysis: domain.Succeeded(map[string]any{"cluster": "op-1"}),
        Report:          domain.Succeeded(map[string]any{"risk_score": risk}),
    }
}

func TestAddAndGetRoundTrip(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    ctx := context.Background()

    rec := record("http://example.com", intp(55), time.Now().UTC())
    rec.Classification = "gambling"
    stored, err := s.AddScanResult(ctx, rec)
    require.NoError(t, err)
    require.NotEmpty(t, stored.ID)

    got, err := s.GetScanResult(ctx, "http://example.com")
    require.NoError(t, err)
    require.Equal(t, stored.ID, got.ID)
    require.Equal(t, rec.ScoutAnalysis, got.ScoutAnalysis)
    require.Equal(t, rec.Report, got.Report)
    require.Equal(t, 55, *got.RiskScore)
    require.Equal(t, "gambling", got.Classification)
}

func TestGetReturnsMostRecent(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    ctx := context.Background()
    base := time.Now().UTC()

    _, err := s.AddScanResult(ctx, record("http://example.com", intp(10), base.Add(-time.Hour)))
    require.NoError(t, err)
    newer, err := s.AddScanResult(ctx, record("http://example.com", intp(90), base))
    require.NoError(t, err)

    got, err := s.GetScanResult(ctx, "http://example.com")
    require.NoError(t, err)
    require.Equal(t, newer.ID, got.ID)
}

func TestGetMissingIsNotFound(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    _, err := s.GetScanResult(context.Background(), "http://nowhere.example.com")
    require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateOnlyMatchesExisting(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    ctx := context.Background()

    matched, err := s.UpdateScanResult(ctx, "http://example.com", domain.ScanUpdate{RiskScore: intp(10)})
    require.NoError(t, err)
    require.False(t, matched, "update must not create records")

    _, err = s.AddScanResult(ctx, record("http://example.com", intp(40), time.Now().UTC()))
    require.NoError(t, err)
    cls := "suspicious"
    matched, err = s.UpdateScanResult(ctx, "http://example.com", domain.ScanUpdate{RiskScore: intp(10), Classification: &cls})
    require.NoError(t, err)
    require.True(t, matched)

    got, err := s.GetScanResult(ctx, "http://example.com")
    require.NoError(t, err)
    require.Equal(t, 10, *got.RiskScore)
    require.Equal(t, "suspicious", got.Classification)
}

func TestListFiltersAndPagination(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    ctx := context.Background()
    now := time.Now().UTC()

    // An old record outside any 30-day window plus ten fresh ones.
    _, err := s.AddScanResult(ctx, record("http://old.example.com", intp(99), now.AddDate(0, 0, -45)))
    require.NoError(t, err)
    for i := 0; i < 10; i++ {
        _, err := s.AddScanResult(ctx, record(fmt.Sprintf("http://site%d.example.com", i), intp(i*10), now.Add(-time.Duration(i)*time.Minute)))
        require.NoError(t, err)
    }

    fresh, err := s.ListScanResults(ctx, domain.ScanFilter{Limit: 100, DaysBack: 30})
    require.NoError(t, err)
    require.Len(t, fresh, 10, "days_back must exclude the 45-day-old record")
    for i := 1; i < len(fresh); i++ {
        require.False(t, fresh[i].Timestamp.After(fresh[i-1].Timestamp), "ordered by timestamp descending")
    }

    // Stable slices: the same limit/offset returns the same page even after
    // a concurrent-style insert of an older-timestamped record.
    page, err := s.ListScanResults(ctx, domain.ScanFilter{Limit: 3, Offset: 2, DaysBack: 30})
    require.NoError(t, err)
    _, err = s.AddScanResult(ctx, record("http://latest.example.com", intp(50), now.Add(-time.Hour)))
    require.NoError(t, err)
    again, err := s.ListScanResults(ctx, domain.ScanFilter{Limit: 3, Offset: 2, DaysBack: 30})
    require.NoError(t, err)
    require.Equal(t, page, again)

    risky, err := s.ListScanResults(ctx, domain.ScanFilter{Limit: 100, MinRisk: 70, DaysBack: 30})
    require.NoError(t, err)
    for _, r := range risky {
        require.GreaterOrEqual(t, *r.RiskScore, 70)
    }

    empty, err := s.ListScanResults(ctx, domain.ScanFilter{Limit: 0, DaysBack: 30})
    require.NoError(t, err)
    require.Empty(t, empty, "limit=0 returns an empty sequence, not an error")
}

func TestUpsertChannelMerges(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    ctx := context.Background()

    first, err := s.UpsertPaymentChannel(ctx, domain.PaymentChannel{
        Identifier: "X123", ChannelType: "ewallet", RiskScore: 5,
        AssociatedURLs: []string{"http://a.example.com"}, Confidence: 80,
    })
    require.NoError(t, err)
    require.Equal(t, 1, first.DetectionCount)

    second, err := s.UpsertPaymentChannel(ctx, domain.PaymentChannel{
        Identifier: "X123", ChannelType: "ewallet", RiskScore: 7,
        AssociatedURLs: []string{"http://b.example.com"}, Confidence: 60,
    })
    require.NoError(t, err)
    require.Equal(t, first.ID, second.ID)
    require.Equal(t, 2, second.DetectionCount)
    require.Equal(t, 7, second.RiskScore, "risk ratchets up")
    require.Equal(t, 80, second.Confidence, "confidence never drops")
    require.ElementsMatch(t, []string{"http://a.example.com", "http://b.example.com"}, second.AssociatedURLs)

    // Same identifier under a different type is a distinct channel.
    _, err = s.UpsertPaymentChannel(ctx, domain.PaymentChannel{Identifier: "X123", ChannelType: "bank_account"})
    require.NoError(t, err)
    all, err := s.ListPaymentChannels(ctx, domain.ChannelFilter{Limit: 10})
    require.NoError(t, err)
    require.Len(t, all, 2)
}

func TestListChannelsBoundaries(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    ctx := context.Background()
    for i, risk := range []int{3, 10, 7} {
        _, err := s.UpsertPaymentChannel(ctx, domain.PaymentChannel{
            Identifier: fmt.Sprintf("id-%d", i), ChannelType: "ewallet", RiskScore: risk,
        })
        require.NoError(t, err)
    }

    maxOnly, err := s.ListPaymentChannels(ctx, domain.ChannelFilter{Limit: 10, MinRiskScore: 10})
    require.NoError(t, err)
    require.Len(t, maxOnly, 1)
    require.Equal(t, 10, maxOnly[0].RiskScore)

    ordered, err := s.ListPaymentChannels(ctx, domain.ChannelFilter{Limit: 10})
    require.NoError(t, err)
    require.Equal(t, []int{10, 7, 3}, []int{ordered[0].RiskScore, ordered[1].RiskScore, ordered[2].RiskScore})

    none, err := s.ListPaymentChannels(ctx, domain.ChannelFilter{Limit: 0})
    require.NoError(t, err)
    require.Empty(t, none)
}

func TestClustersPartition(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    ctx := context.Background()

    _, err := s.UpsertOperatorCluster(ctx, domain.OperatorCluster{
        ClusterID: "op-1", Members: []string{"ewallet:X123", "http://a.example.com"}, RiskScore: 6,
    })
    require.NoError(t, err)

    // Moving a member into another cluster removes it from the first.
    _, err = s.UpsertOperatorCluster(ctx, domain.OperatorCluster{
        ClusterID: "op-2", Members: []string{"ewallet:X123"}, RiskScore: 8,
    })
    require.NoError(t, err)

    all, err := s.ListOperatorClusters(ctx, nil)
    require.NoError(t, err)
    require.Len(t, all, 2)
    byID := map[string][]string{}
    for _, cl := range all {
        byID[cl.ClusterID] = cl.Members
    }
    require.NotContains(t, byID["op-1"], "ewallet:X123")
    require.Contains(t, byID["op-2"], "ewallet:X123")

    high, err := s.ListOperatorClusters(ctx, intp(7))
    require.NoError(t, err)
    require.Len(t, high, 1)
    require.Equal(t, "op-2", high[0].ClusterID)
}

func TestFeedbackAppendAndRecency(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    ctx := context.Background()

    old := domain.FeedbackEntry{TargetURL: "http://a.example.com", Content: "stale", CreatedAt: time.Now().UTC().AddDate(0, 0, -40)}
    _, err := s.AddFeedback(ctx, old)
    require.NoError(t, err)
    _, err = s.AddFeedback(ctx, domain.FeedbackEntry{TargetURL: "http://a.example.com", Content: "misclassified"})
    require.NoError(t, err)

    recent, err := s.ListRecentFeedback(ctx, 30)
    require.NoError(t, err)
    require.Len(t, recent, 1)
    require.Equal(t, "misclassified", recent[0].Content)

    _, err = s.AddFeedback(ctx, domain.FeedbackEntry{Content: "   "})
    require.Error(t, err)
}

func TestStatisticsThresholds(t *testing.T) {
    t.Parallel()
    s := New(70, 30)
    ctx := context.Background()
    now := time.Now().UTC()

    for _, risk := range []int{95, 80, 30, 10} {
        _, err := s.AddScanResult(ctx, record(fmt.Sprintf("http://r%d.example.com", risk), intp(risk), now))
        require.NoError(t, err)
    }
    // A record with no risk score counts in totals only.
    _, err := s.AddScanResult(ctx, record("http://pending.example.com", nil, now))
    require.NoError(t, err)
    _, err = s.UpsertPaymentChannel(ctx, domain.PaymentChannel{Identifier: "X1", ChannelType: "ewallet"})
    require.NoError(t, err)

    stats, err := s.Statistics(ctx)
    require.NoError(t, err)
    require.Equal(t, 5, stats.TotalScans)
    require.Equal(t, 2, stats.ThreatsDetected)
    require.Equal(t, 2, stats.SafeSites)
    require.Equal(t, 1, stats.PaymentChannels)
}
