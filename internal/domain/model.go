package domain

import "time"

// Core domain models used internally. Wire shapes for the HTTP surface are
// derived from these via their json tags.

// Stage names, in pipeline order.
const (
    StageScout        = "scout"
    StageAnalyst      = "analyst"
    StageInvestigator = "investigator"
    StageMapper       = "mapper"
    StageReporter     = "reporter"
)

// StageStatus distinguishes "ran and failed" from "never ran".
type StageStatus string

const (
    StageSuccess StageStatus = "success"
    StageFailed  StageStatus = "failed"
    StageSkipped StageStatus = "skipped"
)

// StageOutcome is the persisted result of one stage invocation.
type StageOutcome struct {
    Status  StageStatus    `json:"status"`
    Payload map[string]any `json:"payload,omitempty"`
    Error   string         `json:"error,omitempty"`
}

func Succeeded(payload map[string]any) StageOutcome {
    return StageOutcome{Status: StageSuccess, Payload: payload}
}

func Failed(cause error) StageOutcome {
    return StageOutcome{Status: StageFailed, Error: cause.Error()}
}

func Skipped() StageOutcome { return StageOutcome{Status: StageSkipped} }

func (o StageOutcome) OK() bool { return o.Status == StageSuccess }

// ScanRecord is the composite result of one pipeline run for one URL.
type ScanRecord struct {
    ID              string       `json:"id"`
    URL             string       `json:"url"`
    Timestamp       time.Time    `json:"timestamp"`
    RiskScore       *int         `json:"risk_score,omitempty"`
    Classification  string       `json:"classification,omitempty"`
    ScoutAnalysis   StageOutcome `json:"scout_analysis"`
    ContentAnalysis StageOutcome `json:"content_analysis"`
    PaymentAnalysis StageOutcome `json:"payment_analysis"`
    NetworkAnalysis StageOutcome `json:"network_analysis"`
    Report          StageOutcome `json:"report"`
}

// Complete reports whether every stage either ran to completion or was
// explicitly marked failed. Skipped payloads mean the pipeline halted early.
func (r *ScanRecord) Complete() bool {
    for _, o := range []StageOutcome{r.ScoutAnalysis, r.ContentAnalysis, r.PaymentAnalysis, r.NetworkAnalysis, r.Report} {
        if o.Status == StageSkipped || o.Status == "" {
            return false
        }
    }
    return true
}

// ScanUpdate carries the optional fields of an explicit record update
// (e.g. reclassification). Nil fields are left untouched.
type ScanUpdate struct {
    RiskScore      *int          `json:"risk_score,omitempty"`
    Classification *string       `json:"classification,omitempty"`
    Report         *StageOutcome `json:"report,omitempty"`
}

func (u ScanUpdate) Empty() bool {
    return u.RiskScore == nil && u.Classification == nil && u.Report == nil
}

// PaymentChannel is a payment identifier observed during analysis, unique on
// (identifier, channel_type). Re-detection merges rather than duplicates.
type PaymentChannel struct {
    ID             string    `json:"id"`
    Identifier     string    `json:"identifier"`
    ChannelType    string    `json:"type"`
    Provider       string    `json:"provider,omitempty"`
    RiskScore      int       `json:"risk_score"`
    AssociatedURLs []string  `json:"associated_urls"`
    FirstDetected  time.Time `json:"first_detected"`
    LastUpdated    time.Time `json:"last_updated"`
    DetectionCount int       `json:"detection_count"`
    Confidence     int       `json:"confidence"`
}

// OperatorCluster groups channels/URLs believed to share an operator.
// Membership partitions: a member belongs to at most one cluster.
type OperatorCluster struct {
    ID        string   `json:"id"`
    ClusterID string   `json:"cluster_id"`
    Members   []string `json:"members"`
    RiskScore int      `json:"risk_score"`
}

// FeedbackEntry is an append-only user correction tied to a scan.
type FeedbackEntry struct {
    ID        string    `json:"id"`
    TargetURL string    `json:"target_url,omitempty"`
    ScanID    string    `json:"scan_id,omitempty"`
    Content   string    `json:"content"`
    CreatedAt time.Time `json:"created_at"`
}

// Statistics is the aggregate view over current store state.
type Statistics struct {
    TotalScans      int       `json:"total_scans"`
    ThreatsDetected int       `json:"threats_detected"`
    PaymentChannels int       `json:"payment_channels"`
    SafeSites       int       `json:"safe_sites"`
    LastUpdated     time.Time `json:"last_updated"`
}

// ScanFilter bounds scan-result listings.
type ScanFilter struct {
    Limit          int
    Offset         int
    MinRisk        int
    MaxRisk        int
    Classification string
    DaysBack       int
}

// ChannelFilter bounds payment-channel listings.
type ChannelFilter struct {
    Limit        int
    ChannelType  string
    MinRiskScore int
}
