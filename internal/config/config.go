package config

import (
    "fmt"
    "os"
    "time"
)

type Config struct {
    Env          string
    ListenAddr   string
    DatabaseURL  string
    ScanWorkers  int
    StageTimeout time.Duration
    // Statistics thresholds: a stored record counts as a threat when its
    // risk score is >= ThreatRiskMin, and as safe when <= SafeRiskMax.
    ThreatRiskMin int
    SafeRiskMax   int
    // Outbound fetch budget for the scout stage, requests per second.
    FetchRate float64
    UserAgent string
}

func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func getenvInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        var out int
        _, err := fmt.Sscanf(v, "%d", &out)
        if err == nil { return out }
    }
    return def
}

func getenvFloat(key string, def float64) float64 {
    if v := os.Getenv(key); v != "" {
        var out float64
        _, err := fmt.Sscanf(v, "%g", &out)
        if err == nil { return out }
    }
    return def
}

func Load() (Config, error) {
    cfg := Config{
        Env:           getenv("APP_ENV", "development"),
        ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
        DatabaseURL:   os.Getenv("DATABASE_URL"),
        ScanWorkers:   getenvInt("SCAN_WORKERS", 0),
        StageTimeout:  time.Duration(getenvInt("STAGE_TIMEOUT_SECONDS", 30)) * time.Second,
        ThreatRiskMin: getenvInt("THREAT_RISK_MIN", 70),
        SafeRiskMax:   getenvInt("SAFE_RISK_MAX", 30),
        FetchRate:     getenvFloat("FETCH_RATE", 2.0),
        UserAgent:     getenv("SCOUT_USER_AGENT", "cakra-scanner/1.0"),
    }
    if cfg.DatabaseURL == "" {
        // Not fatal; the server falls back to the in-memory store. Warn via
        // error value so callers can decide.
        return cfg, fmt.Errorf("DATABASE_URL not set")
    }
    return cfg, nil
}
