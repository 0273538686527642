package memory

import (
    "context"
    "fmt"
    "slices"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"

    "cakra/internal/domain"
)

// Store is an in-memory ScanStore with the same semantics as the Postgres
// adapter. It backs tests and DB-less local runs. Returned values are
// copies at the struct level; payload maps are shared and treated as
// read-only by callers.
type Store struct {
    mu sync.Mutex

    seq      int64
    scans    []scanRow
    channels map[string]*domain.PaymentChannel
    clusters map[string]*domain.OperatorCluster
    feedback []domain.FeedbackEntry

    threatMin int
    safeMax   int
}

type scanRow struct {
    seq int64
    rec domain.ScanRecord
}

func New(threatRiskMin, safeRiskMax int) *Store {
    return &Store{
        channels:  make(map[string]*domain.PaymentChannel),
        clusters:  make(map[string]*domain.OperatorCluster),
        threatMin: threatRiskMin,
        safeMax:   safeRiskMax,
    }
}

func constraint(op string, format string, args ...any) error {
    return &domain.PersistenceError{Kind: domain.Constraint, Op: op, Cause: fmt.Errorf(format, args...)}
}

func (s *Store) AddScanResult(_ context.Context, rec *domain.ScanRecord) (*domain.ScanRecord, error) {
    if rec == nil || strings.TrimSpace(rec.URL) == "" {
        return nil, constraint("add_scan_result", "url must not be empty")
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    stored := *rec
    stored.ID = uuid.NewString()
    if stored.Timestamp.IsZero() {
        stored.Timestamp = time.Now().UTC()
    }
    s.seq++
    s.scans = append(s.scans, scanRow{seq: s.seq, rec: stored})
    out := stored
    return &out, nil
}

// GetScanResult returns the most recent record for the URL; same-instant
// ties resolve to the later insert.
func (s *Store) GetScanResult(_ context.Context, url string) (*domain.ScanRecord, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var best *scanRow
    for i := range s.scans {
        row := &s.scans[i]
        if row.rec.URL != url {
            continue
        }
        if best == nil || row.rec.Timestamp.After(best.rec.Timestamp) ||
            (row.rec.Timestamp.Equal(best.rec.Timestamp) && row.seq > best.seq) {
            best = row
        }
    }
    if best == nil {
        return nil, domain.ErrNotFound
    }
    out := best.rec
    return &out, nil
}

func (s *Store) UpdateScanResult(_ context.Context, url string, upd domain.ScanUpdate) (bool, error) {
    if upd.Empty() {
        return false, constraint("update_scan_result", "no fields to update")
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    var best *scanRow
    for i := range s.scans {
        row := &s.scans[i]
        if row.rec.URL != url {
            continue
        }
        if best == nil || row.rec.Timestamp.After(best.rec.Timestamp) ||
            (row.rec.Timestamp.Equal(best.rec.Timestamp) && row.seq > best.seq) {
            best = row
        }
    }
    if best == nil {
        return false, nil
    }
    if upd.RiskScore != nil {
        v := *upd.RiskScore
        best.rec.RiskScore = &v
    }
    if upd.Classification != nil {
        best.rec.Classification = *upd.Classification
    }
    if upd.Report != nil {
        best.rec.Report = *upd.Report
    }
    return true, nil
}

func (s *Store) ListScanResults(_ context.Context, f domain.ScanFilter) ([]domain.ScanRecord, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    var cutoff time.Time
    if f.DaysBack > 0 {
        cutoff = time.Now().UTC().AddDate(0, 0, -f.DaysBack)
    }

    matched := make([]scanRow, 0, len(s.scans))
    for _, row := range s.scans {
        rec := row.rec
        if !cutoff.IsZero() && rec.Timestamp.Before(cutoff) {
            continue
        }
        if f.MinRisk > 0 && (rec.RiskScore == nil || *rec.RiskScore < f.MinRisk) {
            continue
        }
        if f.MaxRisk > 0 && rec.RiskScore != nil && *rec.RiskScore > f.MaxRisk {
            continue
        }
        if f.Classification != "" && rec.Classification != f.Classification {
            continue
        }
        matched = append(matched, row)
    }
    // Timestamp descending; insertion order breaks ties so pagination stays
    // stable under concurrent inserts.
    sort.SliceStable(matched, func(i, j int) bool {
        if !matched[i].rec.Timestamp.Equal(matched[j].rec.Timestamp) {
            return matched[i].rec.Timestamp.After(matched[j].rec.Timestamp)
        }
        return matched[i].seq > matched[j].seq
    })

    out := []domain.ScanRecord{}
    for i := f.Offset; i < len(matched) && len(out) < f.Limit; i++ {
        out = append(out, matched[i].rec)
    }
    return out, nil
}

func channelKey(channelType, identifier string) string {
    return channelType + "\x00" + identifier
}

func (s *Store) UpsertPaymentChannel(_ context.Context, ch domain.PaymentChannel) (*domain.PaymentChannel, error) {
    if ch.Identifier == "" || ch.ChannelType == "" {
        return nil, constraint("upsert_payment_channel", "identifier and type are required")
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    now := time.Now().UTC()
    key := channelKey(ch.ChannelType, ch.Identifier)
    existing, ok := s.channels[key]
    if !ok {
        stored := ch
        stored.ID = uuid.NewString()
        if stored.FirstDetected.IsZero() { stored.FirstDetected = now }
        if stored.LastUpdated.IsZero() { stored.LastUpdated = now }
        if stored.DetectionCount == 0 { stored.DetectionCount = 1 }
        stored.AssociatedURLs = slices.Clone(ch.AssociatedURLs)
        s.channels[key] = &stored
        out := stored
        return &out, nil
    }
    for _, u := range ch.AssociatedURLs {
        if !slices.Contains(existing.AssociatedURLs, u) {
            existing.AssociatedURLs = append(existing.AssociatedURLs, u)
        }
    }
    existing.DetectionCount++
    existing.LastUpdated = now
    if ch.RiskScore > existing.RiskScore {
        existing.RiskScore = ch.RiskScore
    }
    if ch.Confidence > existing.Confidence {
        existing.Confidence = ch.Confidence
    }
    if existing.Provider == "" {
        existing.Provider = ch.Provider
    }
    out := *existing
    out.AssociatedURLs = slices.Clone(existing.AssociatedURLs)
    return &out, nil
}

func (s *Store) ListPaymentChannels(_ context.Context, f domain.ChannelFilter) ([]domain.PaymentChannel, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    matched := make([]domain.PaymentChannel, 0, len(s.channels))
    for _, ch := range s.channels {
        if f.ChannelType != "" && ch.ChannelType != f.ChannelType {
            continue
        }
        if ch.RiskScore < f.MinRiskScore {
            continue
        }
        c := *ch
        c.AssociatedURLs = slices.Clone(ch.AssociatedURLs)
        matched = append(matched, c)
    }
    sort.SliceStable(matched, func(i, j int) bool {
        if matched[i].RiskScore != matched[j].RiskScore {
            return matched[i].RiskScore > matched[j].RiskScore
        }
        return matched[i].Identifier < matched[j].Identifier
    })
    if f.Limit < len(matched) {
        matched = matched[:f.Limit]
    }
    return matched, nil
}

func (s *Store) UpsertOperatorCluster(_ context.Context, cl domain.OperatorCluster) (*domain.OperatorCluster, error) {
    if cl.ClusterID == "" {
        return nil, constraint("upsert_operator_cluster", "cluster_id is required")
    }
    s.mu.Lock()
    defer s.mu.Unlock()

    // Clusters partition: joining members leave whatever cluster held them.
    for id, other := range s.clusters {
        if id == cl.ClusterID {
            continue
        }
        kept := other.Members[:0]
        for _, m := range other.Members {
            if !slices.Contains(cl.Members, m) {
                kept = append(kept, m)
            }
        }
        other.Members = kept
    }

    existing, ok := s.clusters[cl.ClusterID]
    if !ok {
        stored := cl
        stored.ID = uuid.NewString()
        stored.Members = slices.Clone(cl.Members)
        s.clusters[cl.ClusterID] = &stored
        out := stored
        return &out, nil
    }
    for _, m := range cl.Members {
        if !slices.Contains(existing.Members, m) {
            existing.Members = append(existing.Members, m)
        }
    }
    if cl.RiskScore > existing.RiskScore {
        existing.RiskScore = cl.RiskScore
    }
    out := *existing
    out.Members = slices.Clone(existing.Members)
    return &out, nil
}

func (s *Store) ListOperatorClusters(_ context.Context, minRisk *int) ([]domain.OperatorCluster, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]domain.OperatorCluster, 0, len(s.clusters))
    for _, cl := range s.clusters {
        if minRisk != nil && cl.RiskScore < *minRisk {
            continue
        }
        c := *cl
        c.Members = slices.Clone(cl.Members)
        out = append(out, c)
    }
    sort.SliceStable(out, func(i, j int) bool {
        if out[i].RiskScore != out[j].RiskScore {
            return out[i].RiskScore > out[j].RiskScore
        }
        return out[i].ClusterID < out[j].ClusterID
    })
    return out, nil
}

func (s *Store) AddFeedback(_ context.Context, fb domain.FeedbackEntry) (*domain.FeedbackEntry, error) {
    if strings.TrimSpace(fb.Content) == "" {
        return nil, constraint("add_feedback", "content must not be empty")
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    fb.ID = uuid.NewString()
    if fb.CreatedAt.IsZero() {
        fb.CreatedAt = time.Now().UTC()
    }
    s.feedback = append(s.feedback, fb)
    out := fb
    return &out, nil
}

func (s *Store) ListRecentFeedback(_ context.Context, days int) ([]domain.FeedbackEntry, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    cutoff := time.Now().UTC().AddDate(0, 0, -days)
    out := []domain.FeedbackEntry{}
    for _, fb := range s.feedback {
        if fb.CreatedAt.Before(cutoff) {
            continue
        }
        out = append(out, fb)
    }
    sort.SliceStable(out, func(i, j int) bool {
        return out[i].CreatedAt.After(out[j].CreatedAt)
    })
    return out, nil
}

func (s *Store) Statistics(_ context.Context) (domain.Statistics, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    stats := domain.Statistics{
        TotalScans:      len(s.scans),
        PaymentChannels: len(s.channels),
        LastUpdated:     time.Now().UTC(),
    }
    for _, row := range s.scans {
        if row.rec.RiskScore == nil {
            continue
        }
        switch {
        case *row.rec.RiskScore >= s.threatMin:
            stats.ThreatsDetected++
        case *row.rec.RiskScore <= s.safeMax:
            stats.SafeSites++
        }
    }
    return stats, nil
}
