package pipeline

import (
    "net/url"
    "strings"

    "cakra/internal/domain"
)

// ValidateURL rejects malformed submissions before any stage runs.
func ValidateURL(raw string) error {
    raw = strings.TrimSpace(raw)
    if raw == "" {
        return &domain.ValidationError{Field: "url", Reason: "must not be empty"}
    }
    u, err := url.Parse(raw)
    if err != nil {
        return &domain.ValidationError{Field: "url", Reason: err.Error()}
    }
    if u.Scheme != "http" && u.Scheme != "https" {
        return &domain.ValidationError{Field: "url", Reason: "scheme must be http or https"}
    }
    if u.Hostname() == "" {
        return &domain.ValidationError{Field: "url", Reason: "missing host"}
    }
    return nil
}
