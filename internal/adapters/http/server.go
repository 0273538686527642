package httpadapter

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/url"
    "strconv"
    "time"

    "github.com/go-chi/chi/v5"

    "cakra/internal/domain"
    "cakra/internal/ports"
)

// Server is the query façade: it translates HTTP requests into orchestrator
// and store calls. It holds no state of its own.
type Server struct {
    orch  ports.Orchestrator
    store ports.ScanStore
    jobs  ports.JobRepository // nil disables the async submission path
}

func New(orch ports.Orchestrator, store ports.ScanStore, jobs ports.JobRepository) *Server {
    return &Server{orch: orch, store: store, jobs: jobs}
}

func (s *Server) Routes() chi.Router {
    r := chi.NewRouter()
    r.Route("/api/v1", func(r chi.Router) {
        r.Get("/health", s.health)
        r.Post("/scan", s.submitScan)
        r.Get("/scans/{id}", s.jobStatus)
        r.Get("/scan-results", s.listScanResults)
        r.Get("/scan-results/*", s.getScanResult)
        r.Patch("/scan-results/*", s.updateScanResult)
        r.Get("/payment-channels", s.listPaymentChannels)
        r.Get("/operator-clusters", s.listOperatorClusters)
        r.Post("/feedback", s.addFeedback)
        r.Get("/feedback", s.listFeedback)
        r.Get("/statistics", s.statistics)
    })
    return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{
        "status":    "healthy",
        "timestamp": time.Now().UTC().Format(time.RFC3339),
        "version":   "1.0.0",
    })
}

// submitScan runs the pipeline synchronously by default. With wait=false the
// URL is queued for the background workers instead and a 202 is returned.
func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
    if err := r.ParseForm(); err != nil {
        writeError(w, &domain.ValidationError{Field: "body", Reason: err.Error()})
        return
    }
    target := r.PostFormValue("url")
    switch r.PostFormValue("priority") {
    case "", "low", "normal", "high":
    default:
        writeError(w, &domain.ValidationError{Field: "priority", Reason: "must be low, normal, or high"})
        return
    }
    wait := true
    if v := r.URL.Query().Get("wait"); v != "" {
        parsed, err := strconv.ParseBool(v)
        if err != nil {
            writeError(w, &domain.ValidationError{Field: "wait", Reason: "must be a boolean"})
            return
        }
        wait = parsed
    }
    if !wait {
        if s.jobs == nil {
            writeError(w, &domain.ValidationError{Field: "wait", Reason: "async submissions are disabled"})
            return
        }
        jobID, err := s.jobs.EnqueueScan(r.Context(), target)
        if err != nil {
            writeError(w, err)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]any{"scan_id": jobID, "status": "queued"})
        return
    }

    rec, err := s.orch.Run(r.Context(), target)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, rec)
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
    if s.jobs == nil {
        writeError(w, domain.ErrNotFound)
        return
    }
    status, progress, err := s.jobs.JobStatus(r.Context(), chi.URLParam(r, "id"))
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "id": chi.URLParam(r, "id"), "status": status, "progress": progress,
    })
}

func (s *Server) listScanResults(w http.ResponseWriter, r *http.Request) {
    q := queryReader{r: r}
    f := domain.ScanFilter{
        Limit:          q.intParam("limit", 100, 0, 1000),
        Offset:         q.intParam("offset", 0, 0, 1<<30),
        MinRisk:        q.intParam("min_risk", 0, 0, 100),
        MaxRisk:        q.intParam("max_risk", 100, 0, 100),
        Classification: r.URL.Query().Get("classification"),
        DaysBack:       q.intParam("days_back", 30, 1, 365),
    }
    if q.err != nil {
        writeError(w, q.err)
        return
    }
    results, err := s.store.ListScanResults(r.Context(), f)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, results)
}

func (s *Server) getScanResult(w http.ResponseWriter, r *http.Request) {
    target, err := targetURL(r)
    if err != nil {
        writeError(w, err)
        return
    }
    rec, err := s.store.GetScanResult(r.Context(), target)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, rec)
}

func (s *Server) updateScanResult(w http.ResponseWriter, r *http.Request) {
    target, err := targetURL(r)
    if err != nil {
        writeError(w, err)
        return
    }
    var upd domain.ScanUpdate
    if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
        writeError(w, &domain.ValidationError{Field: "body", Reason: err.Error()})
        return
    }
    if upd.Empty() {
        writeError(w, &domain.ValidationError{Field: "body", Reason: "no fields to update"})
        return
    }
    if upd.RiskScore != nil && (*upd.RiskScore < 0 || *upd.RiskScore > 100) {
        writeError(w, &domain.ValidationError{Field: "risk_score", Reason: "must be between 0 and 100"})
        return
    }
    matched, err := s.store.UpdateScanResult(r.Context(), target, upd)
    if err != nil {
        writeError(w, err)
        return
    }
    if !matched {
        writeError(w, domain.ErrNotFound)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) listPaymentChannels(w http.ResponseWriter, r *http.Request) {
    q := queryReader{r: r}
    f := domain.ChannelFilter{
        Limit:        q.intParam("limit", 500, 0, 2000),
        ChannelType:  r.URL.Query().Get("type"),
        MinRiskScore: q.intParam("min_risk_score", 0, 0, 10),
    }
    if q.err != nil {
        writeError(w, q.err)
        return
    }
    channels, err := s.store.ListPaymentChannels(r.Context(), f)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, channels)
}

func (s *Server) listOperatorClusters(w http.ResponseWriter, r *http.Request) {
    q := queryReader{r: r}
    minRisk := q.intParam("min_risk_score", 5, 0, 10)
    if q.err != nil {
        writeError(w, q.err)
        return
    }
    clusters, err := s.store.ListOperatorClusters(r.Context(), &minRisk)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, clusters)
}

func (s *Server) addFeedback(w http.ResponseWriter, r *http.Request) {
    var fb domain.FeedbackEntry
    if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
        writeError(w, &domain.ValidationError{Field: "body", Reason: err.Error()})
        return
    }
    if fb.Content == "" {
        writeError(w, &domain.ValidationError{Field: "content", Reason: "must not be empty"})
        return
    }
    if fb.TargetURL == "" && fb.ScanID == "" {
        writeError(w, &domain.ValidationError{Field: "target", Reason: "target_url or scan_id is required"})
        return
    }
    stored, err := s.store.AddFeedback(r.Context(), fb)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) listFeedback(w http.ResponseWriter, r *http.Request) {
    q := queryReader{r: r}
    days := q.intParam("days", 30, 1, 365)
    if q.err != nil {
        writeError(w, q.err)
        return
    }
    entries, err := s.store.ListRecentFeedback(r.Context(), days)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, entries)
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
    stats, err := s.store.Statistics(r.Context())
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, stats)
}

// targetURL resolves the record URL from the wildcard path suffix, with a
// ?url= query fallback for clients whose proxies rewrite double slashes.
func targetURL(r *http.Request) (string, error) {
    if v := r.URL.Query().Get("url"); v != "" {
        return v, nil
    }
    raw := chi.URLParam(r, "*")
    if raw == "" {
        return "", &domain.ValidationError{Field: "url", Reason: "must not be empty"}
    }
    if unescaped, err := url.PathUnescape(raw); err == nil {
        raw = unescaped
    }
    return raw, nil
}

// queryReader parses bounded integer query parameters, collecting the first
// violation as a ValidationError.
type queryReader struct {
    r   *http.Request
    err error
}

func (q *queryReader) intParam(name string, def, min, max int) int {
    v := q.r.URL.Query().Get(name)
    if v == "" {
        return def
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        if q.err == nil {
            q.err = &domain.ValidationError{Field: name, Reason: "must be an integer"}
        }
        return def
    }
    if n < min || n > max {
        if q.err == nil {
            q.err = &domain.ValidationError{Field: name, Reason: "out of range"}
        }
        return def
    }
    return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses. A scout
// failure reads as "cannot analyze URL"; a persistence failure as "cannot
// save result", split by retryability.
func writeError(w http.ResponseWriter, err error) {
    var ve *domain.ValidationError
    var se *domain.StageError
    var pe *domain.PersistenceError
    switch {
    case errors.As(err, &ve):
        writeJSON(w, http.StatusBadRequest, map[string]any{"detail": ve.Error()})
    case errors.Is(err, domain.ErrNotFound):
        writeJSON(w, http.StatusNotFound, map[string]any{"detail": "not found"})
    case errors.As(err, &se):
        writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "cannot analyze URL: " + se.Cause.Error()})
    case errors.As(err, &pe) && pe.Retryable():
        writeJSON(w, http.StatusServiceUnavailable, map[string]any{"detail": "cannot save result, retry later"})
    case errors.As(err, &pe):
        writeJSON(w, http.StatusConflict, map[string]any{"detail": "cannot save result: " + pe.Cause.Error()})
    case errors.Is(err, context.DeadlineExceeded):
        writeJSON(w, http.StatusGatewayTimeout, map[string]any{"detail": "scan timed out"})
    default:
        writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": err.Error()})
    }
}
