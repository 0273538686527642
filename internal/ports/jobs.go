package ports

import "context"

type ScanJob struct {
    ID  string
    URL string
}

// JobRepository backs the asynchronous submission path: queued scans are
// claimed by background workers that run the pipeline.
type JobRepository interface {
    EnqueueScan(ctx context.Context, url string) (jobID string, err error)
    ClaimNext(ctx context.Context) (job ScanJob, found bool, err error)
    UpdateProgress(ctx context.Context, jobID string, progress float64) error
    MarkCompleted(ctx context.Context, jobID string) error
    MarkFailed(ctx context.Context, jobID string, reason string) error
    JobStatus(ctx context.Context, jobID string) (status string, progress float64, err error)
}
