package postgres

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/jackc/pgx/v5"

    "cakra/internal/domain"
)

const scanColumns = `id, url, ts, risk_score, COALESCE(classification, ''),
    scout_analysis, content_analysis, payment_analysis, network_analysis, report`

func (db *DB) AddScanResult(ctx context.Context, rec *domain.ScanRecord) (*domain.ScanRecord, error) {
    outcomes, err := marshalOutcomes(rec)
    if err != nil {
        return nil, &domain.PersistenceError{Kind: domain.Constraint, Op: "add_scan_result", Cause: err}
    }
    stored := *rec
    err = db.Pool.QueryRow(ctx, `
        INSERT INTO scan_results (url, ts, risk_score, classification,
            scout_analysis, content_analysis, payment_analysis, network_analysis, report)
        VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
        RETURNING id, ts
    `, rec.URL, rec.Timestamp, rec.RiskScore, rec.Classification,
        outcomes[0], outcomes[1], outcomes[2], outcomes[3], outcomes[4],
    ).Scan(&stored.ID, &stored.Timestamp)
    if err != nil {
        return nil, wrap("add_scan_result", err)
    }
    return &stored, nil
}

func (db *DB) GetScanResult(ctx context.Context, url string) (*domain.ScanRecord, error) {
    row := db.Pool.QueryRow(ctx, `
        SELECT `+scanColumns+`
        FROM scan_results
        WHERE url = $1
        ORDER BY ts DESC, seq DESC
        LIMIT 1
    `, url)
    rec, err := scanRecord(row)
    if errors.Is(err, pgx.ErrNoRows) {
        return nil, domain.ErrNotFound
    }
    if err != nil {
        return nil, wrap("get_scan_result", err)
    }
    return rec, nil
}

func (db *DB) UpdateScanResult(ctx context.Context, url string, upd domain.ScanUpdate) (bool, error) {
    if upd.Empty() {
        return false, &domain.PersistenceError{Kind: domain.Constraint, Op: "update_scan_result", Cause: errors.New("no fields to update")}
    }
    sets := []string{}
    args := []any{url}
    add := func(expr string, v any) {
        args = append(args, v)
        sets = append(sets, fmt.Sprintf(expr, len(args)))
    }
    if upd.RiskScore != nil {
        add("risk_score = $%d", *upd.RiskScore)
    }
    if upd.Classification != nil {
        add("classification = NULLIF($%d, '')", *upd.Classification)
    }
    if upd.Report != nil {
        b, err := json.Marshal(upd.Report)
        if err != nil {
            return false, &domain.PersistenceError{Kind: domain.Constraint, Op: "update_scan_result", Cause: err}
        }
        add("report = $%d", b)
    }
    tag, err := db.Pool.Exec(ctx, `
        UPDATE scan_results SET `+strings.Join(sets, ", ")+`
        WHERE id = (
            SELECT id FROM scan_results WHERE url = $1 ORDER BY ts DESC, seq DESC LIMIT 1
        )
    `, args...)
    if err != nil {
        return false, wrap("update_scan_result", err)
    }
    return tag.RowsAffected() > 0, nil
}

func (db *DB) ListScanResults(ctx context.Context, f domain.ScanFilter) ([]domain.ScanRecord, error) {
    if f.Limit <= 0 {
        return []domain.ScanRecord{}, nil
    }
    where := []string{"true"}
    args := []any{}
    arg := func(v any) string {
        args = append(args, v)
        return fmt.Sprintf("$%d", len(args))
    }
    if f.DaysBack > 0 {
        where = append(where, "ts >= now() - make_interval(days => "+arg(f.DaysBack)+")")
    }
    if f.MinRisk > 0 {
        where = append(where, "risk_score >= "+arg(f.MinRisk))
    }
    if f.MaxRisk > 0 {
        where = append(where, "(risk_score IS NULL OR risk_score <= "+arg(f.MaxRisk)+")")
    }
    if f.Classification != "" {
        where = append(where, "classification = "+arg(f.Classification))
    }
    query := `
        SELECT ` + scanColumns + `
        FROM scan_results
        WHERE ` + strings.Join(where, " AND ") + `
        ORDER BY ts DESC, seq DESC
        OFFSET ` + arg(f.Offset) + ` LIMIT ` + arg(f.Limit)

    rows, err := db.Pool.Query(ctx, query, args...)
    if err != nil {
        return nil, wrap("list_scan_results", err)
    }
    defer rows.Close()
    out := []domain.ScanRecord{}
    for rows.Next() {
        rec, err := scanRecord(rows)
        if err != nil {
            return nil, wrap("list_scan_results", err)
        }
        out = append(out, *rec)
    }
    return out, wrap("list_scan_results", rows.Err())
}

func (db *DB) UpsertPaymentChannel(ctx context.Context, ch domain.PaymentChannel) (*domain.PaymentChannel, error) {
    urls, err := json.Marshal(ch.AssociatedURLs)
    if err != nil {
        return nil, &domain.PersistenceError{Kind: domain.Constraint, Op: "upsert_payment_channel", Cause: err}
    }
    // Single-statement upsert keeps the read-modify-write on
    // detection_count/associated_urls atomic per identifier.
    row := db.Pool.QueryRow(ctx, `
        INSERT INTO payment_channels (identifier, channel_type, provider, risk_score, associated_urls, confidence)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
        ON CONFLICT (identifier, channel_type) DO UPDATE SET
            associated_urls = (
                SELECT COALESCE(jsonb_agg(DISTINCT u), '[]'::jsonb)
                FROM jsonb_array_elements(payment_channels.associated_urls || EXCLUDED.associated_urls) AS t(u)
            ),
            detection_count = payment_channels.detection_count + 1,
            risk_score = GREATEST(payment_channels.risk_score, EXCLUDED.risk_score),
            confidence = GREATEST(payment_channels.confidence, EXCLUDED.confidence),
            provider = COALESCE(payment_channels.provider, EXCLUDED.provider),
            last_updated = now()
        RETURNING id, identifier, channel_type, COALESCE(provider, ''), risk_score,
            associated_urls, first_detected, last_updated, detection_count, confidence
    `, ch.Identifier, ch.ChannelType, ch.Provider, ch.RiskScore, urls, ch.Confidence)

    var stored domain.PaymentChannel
    var urlsB []byte
    err = row.Scan(&stored.ID, &stored.Identifier, &stored.ChannelType, &stored.Provider,
        &stored.RiskScore, &urlsB, &stored.FirstDetected, &stored.LastUpdated,
        &stored.DetectionCount, &stored.Confidence)
    if err != nil {
        return nil, wrap("upsert_payment_channel", err)
    }
    if err := json.Unmarshal(urlsB, &stored.AssociatedURLs); err != nil {
        return nil, wrap("upsert_payment_channel", err)
    }
    return &stored, nil
}

func (db *DB) ListPaymentChannels(ctx context.Context, f domain.ChannelFilter) ([]domain.PaymentChannel, error) {
    if f.Limit <= 0 {
        return []domain.PaymentChannel{}, nil
    }
    where := []string{"risk_score >= $1"}
    args := []any{f.MinRiskScore}
    if f.ChannelType != "" {
        args = append(args, f.ChannelType)
        where = append(where, fmt.Sprintf("channel_type = $%d", len(args)))
    }
    args = append(args, f.Limit)
    rows, err := db.Pool.Query(ctx, `
        SELECT id, identifier, channel_type, COALESCE(provider, ''), risk_score,
            associated_urls, first_detected, last_updated, detection_count, confidence
        FROM payment_channels
        WHERE `+strings.Join(where, " AND ")+`
        ORDER BY risk_score DESC, identifier
        LIMIT $`+fmt.Sprint(len(args)), args...)
    if err != nil {
        return nil, wrap("list_payment_channels", err)
    }
    defer rows.Close()
    out := []domain.PaymentChannel{}
    for rows.Next() {
        var ch domain.PaymentChannel
        var urlsB []byte
        if err := rows.Scan(&ch.ID, &ch.Identifier, &ch.ChannelType, &ch.Provider, &ch.RiskScore,
            &urlsB, &ch.FirstDetected, &ch.LastUpdated, &ch.DetectionCount, &ch.Confidence); err != nil {
            return nil, wrap("list_payment_channels", err)
        }
        if err := json.Unmarshal(urlsB, &ch.AssociatedURLs); err != nil {
            return nil, wrap("list_payment_channels", err)
        }
        out = append(out, ch)
    }
    return out, wrap("list_payment_channels", rows.Err())
}

func (db *DB) UpsertOperatorCluster(ctx context.Context, cl domain.OperatorCluster) (*domain.OperatorCluster, error) {
    members, err := json.Marshal(cl.Members)
    if err != nil {
        return nil, &domain.PersistenceError{Kind: domain.Constraint, Op: "upsert_operator_cluster", Cause: err}
    }
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return nil, wrap("upsert_operator_cluster", err)
    }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { _ = tx.Commit(ctx) }
    }()

    // Clusters partition: pull the incoming members out of any other cluster
    // before merging them into this one.
    if len(cl.Members) > 0 {
        _, err = tx.Exec(ctx, `
            UPDATE operator_clusters
            SET members = (
                SELECT COALESCE(jsonb_agg(m), '[]'::jsonb)
                FROM jsonb_array_elements(operator_clusters.members) AS t(m)
                WHERE m #>> '{}' <> ALL($2::text[])
            )
            WHERE cluster_id <> $1 AND members ?| $2
        `, cl.ClusterID, cl.Members)
        if err != nil {
            return nil, wrap("upsert_operator_cluster", err)
        }
    }

    var stored domain.OperatorCluster
    var membersB []byte
    err = tx.QueryRow(ctx, `
        INSERT INTO operator_clusters (cluster_id, members, risk_score)
        VALUES ($1, $2, $3)
        ON CONFLICT (cluster_id) DO UPDATE SET
            members = (
                SELECT COALESCE(jsonb_agg(DISTINCT m), '[]'::jsonb)
                FROM jsonb_array_elements(operator_clusters.members || EXCLUDED.members) AS t(m)
            ),
            risk_score = GREATEST(operator_clusters.risk_score, EXCLUDED.risk_score)
        RETURNING id, cluster_id, members, risk_score
    `, cl.ClusterID, members, cl.RiskScore).Scan(&stored.ID, &stored.ClusterID, &membersB, &stored.RiskScore)
    if err != nil {
        return nil, wrap("upsert_operator_cluster", err)
    }
    if err = json.Unmarshal(membersB, &stored.Members); err != nil {
        return nil, wrap("upsert_operator_cluster", err)
    }
    return &stored, nil
}

func (db *DB) ListOperatorClusters(ctx context.Context, minRisk *int) ([]domain.OperatorCluster, error) {
    query := `SELECT id, cluster_id, members, risk_score FROM operator_clusters`
    args := []any{}
    if minRisk != nil {
        query += ` WHERE risk_score >= $1`
        args = append(args, *minRisk)
    }
    query += ` ORDER BY risk_score DESC, cluster_id`
    rows, err := db.Pool.Query(ctx, query, args...)
    if err != nil {
        return nil, wrap("list_operator_clusters", err)
    }
    defer rows.Close()
    out := []domain.OperatorCluster{}
    for rows.Next() {
        var cl domain.OperatorCluster
        var membersB []byte
        if err := rows.Scan(&cl.ID, &cl.ClusterID, &membersB, &cl.RiskScore); err != nil {
            return nil, wrap("list_operator_clusters", err)
        }
        if err := json.Unmarshal(membersB, &cl.Members); err != nil {
            return nil, wrap("list_operator_clusters", err)
        }
        out = append(out, cl)
    }
    return out, wrap("list_operator_clusters", rows.Err())
}

func (db *DB) AddFeedback(ctx context.Context, fb domain.FeedbackEntry) (*domain.FeedbackEntry, error) {
    stored := fb
    err := db.Pool.QueryRow(ctx, `
        INSERT INTO feedback_entries (target_url, scan_id, content)
        VALUES (NULLIF($1, ''), NULLIF($2, ''), $3)
        RETURNING id, created_at
    `, fb.TargetURL, fb.ScanID, fb.Content).Scan(&stored.ID, &stored.CreatedAt)
    if err != nil {
        return nil, wrap("add_feedback", err)
    }
    return &stored, nil
}

func (db *DB) ListRecentFeedback(ctx context.Context, days int) ([]domain.FeedbackEntry, error) {
    rows, err := db.Pool.Query(ctx, `
        SELECT id, COALESCE(target_url, ''), COALESCE(scan_id, ''), content, created_at
        FROM feedback_entries
        WHERE created_at >= now() - make_interval(days => $1)
        ORDER BY created_at DESC
    `, days)
    if err != nil {
        return nil, wrap("list_recent_feedback", err)
    }
    defer rows.Close()
    out := []domain.FeedbackEntry{}
    for rows.Next() {
        var fb domain.FeedbackEntry
        if err := rows.Scan(&fb.ID, &fb.TargetURL, &fb.ScanID, &fb.Content, &fb.CreatedAt); err != nil {
            return nil, wrap("list_recent_feedback", err)
        }
        out = append(out, fb)
    }
    return out, wrap("list_recent_feedback", rows.Err())
}

func (db *DB) Statistics(ctx context.Context) (domain.Statistics, error) {
    stats := domain.Statistics{LastUpdated: time.Now().UTC()}
    err := db.Pool.QueryRow(ctx, `
        SELECT
            (SELECT count(*) FROM scan_results),
            (SELECT count(*) FROM scan_results WHERE risk_score >= $1),
            (SELECT count(*) FROM payment_channels),
            (SELECT count(*) FROM scan_results WHERE risk_score IS NOT NULL AND risk_score <= $2)
    `, db.threatMin, db.safeMax).Scan(&stats.TotalScans, &stats.ThreatsDetected, &stats.PaymentChannels, &stats.SafeSites)
    if err != nil {
        return stats, wrap("get_statistics", err)
    }
    return stats, nil
}

// marshalOutcomes encodes the five stage payloads in pipeline order.
func marshalOutcomes(rec *domain.ScanRecord) ([5][]byte, error) {
    var out [5][]byte
    for i, o := range []domain.StageOutcome{
        rec.ScoutAnalysis, rec.ContentAnalysis, rec.PaymentAnalysis, rec.NetworkAnalysis, rec.Report,
    } {
        b, err := json.Marshal(o)
        if err != nil {
            return out, err
        }
        out[i] = b
    }
    return out, nil
}

func scanRecord(row pgx.Row) (*domain.ScanRecord, error) {
    var rec domain.ScanRecord
    var raw [5][]byte
    err := row.Scan(&rec.ID, &rec.URL, &rec.Timestamp, &rec.RiskScore, &rec.Classification,
        &raw[0], &raw[1], &raw[2], &raw[3], &raw[4])
    if err != nil {
        return nil, err
    }
    for i, dst := range []*domain.StageOutcome{
        &rec.ScoutAnalysis, &rec.ContentAnalysis, &rec.PaymentAnalysis, &rec.NetworkAnalysis, &rec.Report,
    } {
        if err := json.Unmarshal(raw[i], dst); err != nil {
            return nil, err
        }
    }
    return &rec, nil
}
