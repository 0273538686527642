package ports

import (
    "context"

    "cakra/internal/domain"
)

// ScanStore owns all persisted state. Every method fails with a typed
// *domain.PersistenceError except not-found lookups, which return
// domain.ErrNotFound.
type ScanStore interface {
    // AddScanResult persists a composite record atomically and returns it
    // with its assigned id.
    AddScanResult(ctx context.Context, rec *domain.ScanRecord) (*domain.ScanRecord, error)

    // GetScanResult returns the most recent record for the URL.
    GetScanResult(ctx context.Context, url string) (*domain.ScanRecord, error)

    // UpdateScanResult applies a partial update to the most recent record
    // for the URL. Returns false when no row matched; never creates one.
    UpdateScanResult(ctx context.Context, url string, upd domain.ScanUpdate) (bool, error)

    // ListScanResults returns records ordered by timestamp descending.
    ListScanResults(ctx context.Context, f domain.ScanFilter) ([]domain.ScanRecord, error)

    // UpsertPaymentChannel merges on (identifier, channel_type): a repeat
    // sighting extends associated_urls, bumps detection_count, and refreshes
    // last_updated instead of inserting a duplicate.
    UpsertPaymentChannel(ctx context.Context, ch domain.PaymentChannel) (*domain.PaymentChannel, error)

    // ListPaymentChannels returns channels ordered by risk_score descending.
    ListPaymentChannels(ctx context.Context, f domain.ChannelFilter) ([]domain.PaymentChannel, error)

    // UpsertOperatorCluster merges members into the cluster keyed by
    // cluster_id, moving members out of any other cluster (partitioning).
    UpsertOperatorCluster(ctx context.Context, cl domain.OperatorCluster) (*domain.OperatorCluster, error)

    // ListOperatorClusters returns clusters, optionally filtered by a
    // minimum risk score. A nil threshold lists everything.
    ListOperatorClusters(ctx context.Context, minRisk *int) ([]domain.OperatorCluster, error)

    // AddFeedback appends a feedback entry.
    AddFeedback(ctx context.Context, fb domain.FeedbackEntry) (*domain.FeedbackEntry, error)

    // ListRecentFeedback returns entries newer than the cutoff, newest first.
    ListRecentFeedback(ctx context.Context, days int) ([]domain.FeedbackEntry, error)

    // Statistics returns aggregate counts over committed state only.
    Statistics(ctx context.Context) (domain.Statistics, error)
}
