package postgres

import (
    "context"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"

    "cakra/internal/domain"
    "cakra/internal/ports"
)

// EnqueueScan queues a URL for the background workers.
func (db *DB) EnqueueScan(ctx context.Context, url string) (string, error) {
    var id string
    err := db.Pool.QueryRow(ctx, `INSERT INTO scan_jobs (url) VALUES ($1) RETURNING id`, url).Scan(&id)
    if err != nil {
        return "", wrap("enqueue_scan", err)
    }
    return id, nil
}

// ClaimNext selects the next queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.ScanJob, found bool, err error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return job, false, wrap("claim_next", err) }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { _ = tx.Commit(ctx) }
    }()

    err = tx.QueryRow(ctx, `
        SELECT id, url FROM scan_jobs
        WHERE status = 'queued'
        ORDER BY queued_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&job.ID, &job.URL)
    if errors.Is(err, pgx.ErrNoRows) {
        err = nil
        return job, false, nil
    }
    if err != nil { return job, false, wrap("claim_next", err) }

    if _, err = tx.Exec(ctx, `
        UPDATE scan_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1
    `, job.ID); err != nil {
        return job, false, wrap("claim_next", err)
    }
    return job, true, nil
}

func (db *DB) UpdateProgress(ctx context.Context, jobID string, progress float64) error {
    if progress < 0 { progress = 0 }
    if progress > 1 { progress = 1 }
    _, err := db.Pool.Exec(ctx, `UPDATE scan_jobs SET progress=$2 WHERE id=$1`, jobID, progress)
    return wrap("update_progress", err)
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    _, err := db.Pool.Exec(ctx, `
        UPDATE scan_jobs SET status='completed', progress=1, finished_at=now() WHERE id=$1
    `, jobID)
    return wrap("mark_completed", err)
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    _, err := db.Pool.Exec(ctx, `
        UPDATE scan_jobs SET status='failed', error=$2, finished_at=now() WHERE id=$1
    `, jobID, reason)
    return wrap("mark_failed", err)
}

func (db *DB) JobStatus(ctx context.Context, jobID string) (string, float64, error) {
    var status string
    var progress float64
    err := db.Pool.QueryRow(ctx, `SELECT status, progress FROM scan_jobs WHERE id=$1`, jobID).Scan(&status, &progress)
    if errors.Is(err, pgx.ErrNoRows) {
        return "", 0, domain.ErrNotFound
    }
    if err != nil {
        return "", 0, wrap("job_status", err)
    }
    return status, progress, nil
}
