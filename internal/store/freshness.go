package store

import (
	"time"

	"global-universe/internal/models"
)

// SyncStatus reports when a kind of data last refreshed successfully.
type SyncStatus struct {
	Kind     models.RunKind
	LastSync time.Time
	Age      time.Duration
	IsStale  bool
	Never    bool
}

// FreshnessConfig holds staleness thresholds per run kind.
type FreshnessConfig struct {
	StaleAfter map[models.RunKind]time.Duration
}

// DefaultFreshnessConfig returns thresholds that tolerate a skipped weekend.
func DefaultFreshnessConfig() FreshnessConfig {
	return FreshnessConfig{
		StaleAfter: map[models.RunKind]time.Duration{
			models.RunPrices:     72 * time.Hour,
			models.RunValuations: 72 * time.Hour,
			models.RunKRX:        72 * time.Hour,
			models.RunMacro:      35 * 24 * time.Hour,
		},
	}
}

// Freshness evaluates every configured kind against the ledger.
func Freshness(ledger RunLedger, cfg FreshnessConfig, now time.Time) []SyncStatus {
	kinds := []models.RunKind{models.RunPrices, models.RunValuations, models.RunKRX, models.RunMacro}
	out := make([]SyncStatus, 0, len(kinds))
	for _, k := range kinds {
		st := SyncStatus{Kind: k, LastSync: ledger.GetLastSync(k)}
		if st.LastSync.IsZero() {
			st.Never = true
			st.IsStale = true
		} else {
			st.Age = now.Sub(st.LastSync)
			if limit, ok := cfg.StaleAfter[k]; ok && st.Age > limit {
				st.IsStale = true
			}
		}
		out = append(out, st)
	}
	return out
}
