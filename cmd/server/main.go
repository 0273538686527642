package main

import (
    "context"
    "fmt"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/go-chi/chi/v5"

    httpadapter "cakra/internal/adapters/http"
    "cakra/internal/adapters/memory"
    pg "cakra/internal/adapters/postgres"
    "cakra/internal/config"
    "cakra/internal/pipeline"
    "cakra/internal/ports"
    "cakra/internal/stages"
    scanworker "cakra/internal/workers/scanrunner"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Printf("warning: %v", err)
    }

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    var store ports.ScanStore
    var jobs ports.JobRepository
    if cfg.DatabaseURL != "" {
        db, err := pg.Connect(ctx, cfg.DatabaseURL, cfg.ThreatRiskMin, cfg.SafeRiskMax)
        if err != nil {
            log.Fatalf("db connect error: %v", err)
        }
        defer db.Close()
        var _ ports.ScanStore = db
        var _ ports.JobRepository = db
        store = db
        jobs = db
    } else {
        log.Printf("running with in-memory store; results are not durable")
        store = memory.New(cfg.ThreatRiskMin, cfg.SafeRiskMax)
    }

    reg, err := pipeline.NewRegistry(
        stages.NewScout(cfg.FetchRate, cfg.UserAgent),
        stages.NewContentAnalyst(),
        stages.NewPaymentInvestigator(),
        stages.NewNetworkMapper(),
        stages.NewReporter(),
    )
    if err != nil {
        log.Fatalf("stage registry: %v", err)
    }
    // A failed stage initialization means no scan may be accepted: exit
    // before the listener ever opens.
    if err := reg.InitializeAll(ctx); err != nil {
        log.Fatalf("stage init error: %v", err)
    }

    pipe := pipeline.New(reg, store, cfg.StageTimeout)

    srv := httpadapter.New(pipe, store, jobs)
    r := chi.NewRouter()
    r.Mount("/", srv.Routes())

    // Optional background job workers (require the durable job queue)
    if jobs != nil && cfg.ScanWorkers > 0 {
        processor := scanworker.PipelineProcessor{Orch: pipe, Jobs: jobs}
        go scanworker.Run(ctx, jobs, processor, cfg.ScanWorkers, 500*time.Millisecond)
        log.Printf("scan workers started: %d", cfg.ScanWorkers)
    }

    errCh := make(chan error, 1)
    go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
    log.Printf("listening on %s", cfg.ListenAddr)

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    select {
    case sig := <-sigCh:
        log.Printf("shutting down on %s", sig)
        cancel()
        time.Sleep(300 * time.Millisecond)
    case err := <-errCh:
        log.Fatal(fmt.Errorf("server error: %w", err))
    }
}
