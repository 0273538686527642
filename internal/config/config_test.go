package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
    t.Setenv("DATABASE_URL", "")
    cfg, err := Load()
    require.Error(t, err) // missing DATABASE_URL is reported, not fatal
    require.Equal(t, ":8080", cfg.ListenAddr)
    require.Equal(t, 30*time.Second, cfg.StageTimeout)
    require.Equal(t, 70, cfg.ThreatRiskMin)
    require.Equal(t, 30, cfg.SafeRiskMax)
    require.Equal(t, 0, cfg.ScanWorkers)
}

func TestLoadOverrides(t *testing.T) {
    t.Setenv("DATABASE_URL", "postgres://localhost/cakra")
    t.Setenv("SCAN_WORKERS", "4")
    t.Setenv("STAGE_TIMEOUT_SECONDS", "5")
    t.Setenv("THREAT_RISK_MIN", "80")
    t.Setenv("FETCH_RATE", "0.5")
    cfg, err := Load()
    require.NoError(t, err)
    require.Equal(t, 4, cfg.ScanWorkers)
    require.Equal(t, 5*time.Second, cfg.StageTimeout)
    require.Equal(t, 80, cfg.ThreatRiskMin)
    require.Equal(t, 0.5, cfg.FetchRate)
}
