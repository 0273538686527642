package scanrunner

import (
    "context"
    "log"
    "time"

    "cakra/internal/ports"
)

// Processor performs the scan work for a claimed job.
type Processor interface {
    Process(ctx context.Context, job ports.ScanJob) error
}

// PipelineProcessor runs the real analysis pipeline for a job's URL and
// mirrors coarse progress onto the job row.
type PipelineProcessor struct {
    Orch ports.Orchestrator
    Jobs ports.JobRepository
}

func (p PipelineProcessor) Process(ctx context.Context, job ports.ScanJob) error {
    if err := p.Jobs.UpdateProgress(ctx, job.ID, 0.1); err != nil { return err }
    if _, err := p.Orch.Run(ctx, job.URL); err != nil {
        return err
    }
    return p.Jobs.UpdateProgress(ctx, job.ID, 1.0)
}

// Run starts worker goroutines that claim queued scan jobs and process them.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, concurrency int, pollInterval time.Duration) {
    if concurrency < 1 { return }
    jobsCh := make(chan ports.ScanJob, concurrency)

    // dispatcher loop
    go func() {
        ticker := time.NewTicker(pollInterval)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                close(jobsCh)
                return
            case <-ticker.C:
                for {
                    job, found, err := repo.ClaimNext(ctx)
                    if err != nil {
                        log.Printf("job claim error: %v", err)
                        break
                    }
                    if !found { break }
                    jobsCh <- job
                }
            }
        }
    }()

    // workers
    for i := 0; i < concurrency; i++ {
        go func(idx int) {
            for job := range jobsCh {
                if err := processor.Process(ctx, job); err != nil {
                    _ = repo.MarkFailed(ctx, job.ID, err.Error())
                    log.Printf("worker %d: job %s failed: %v", idx, job.ID, err)
                    continue
                }
                if err := repo.MarkCompleted(ctx, job.ID); err != nil {
                    log.Printf("worker %d: complete err: %v", idx, err)
                }
            }
        }(i)
    }
}
