package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plantd/internal/config"
)

type ledgerPruner interface {
	DeleteOlderThan(retention time.Duration) (int64, error)
}

// runLedgerCleanup periodically cleans up old ledger entries.
func runLedgerCleanup(ctx context.Context, l ledgerPruner, cfg config.LedgerConfig) {
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	interval := cfg.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneLedger(l, retention)
		}
	}
}

func pruneLedger(l ledgerPruner, retention time.Duration) {
	deleted, err := l.DeleteOlderThan(retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
	}
}
