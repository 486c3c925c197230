package funding

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"crowdfund/portal-backend/internal/chain"
	"crowdfund/portal-backend/internal/projects"
)

// ReconcileReport counts what one reconciliation pass did
type ReconcileReport struct {
	Repaired    int `json:"repaired"`
	Confirmed   int `json:"confirmed"`
	Reverted    int `json:"reverted"`
	Dropped     int `json:"dropped"`
	Pending     int `json:"pending"`
	Rebroadcast int `json:"rebroadcast"`
	Errors      int `json:"errors"`
}

// Reconciler settles what the create flow left open: journal entries whose
// record was never stored, and records still marked submitted.
type Reconciler struct {
	journal       Journal
	registry      projects.Service
	gateway       Gateway
	batchSize     int
	maxPendingAge time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewReconciler(journal Journal, registry projects.Service, gateway Gateway, batchSize int, maxPendingAge time.Duration, logger *zap.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxPendingAge <= 0 {
		maxPendingAge = time.Hour
	}
	return &Reconciler{
		journal:       journal,
		registry:      registry,
		gateway:       gateway,
		batchSize:     batchSize,
		maxPendingAge: maxPendingAge,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one pass. Per-item failures are counted, not returned; the
// error is only set when the journal or the store cannot be read at all.
// Both halves run even when the other one fails.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	journalErr := r.repairJournal(ctx, &report)
	if journalErr != nil {
		r.logger.Error("journal repair failed", zap.Error(journalErr))
	}
	if err := ctx.Err(); err != nil {
		if journalErr != nil {
			return report, journalErr
		}
		return report, err
	}
	settleErr := r.settleSubmitted(ctx, &report)
	if err := errors.Join(journalErr, settleErr); err != nil {
		return report, err
	}

	r.logger.Info("reconciliation pass finished",
		zap.Int("repaired", report.Repaired),
		zap.Int("confirmed", report.Confirmed),
		zap.Int("reverted", report.Reverted),
		zap.Int("dropped", report.Dropped),
		zap.Int("pending", report.Pending),
		zap.Int("rebroadcast", report.Rebroadcast),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

func (r *Reconciler) repairJournal(ctx context.Context, report *ReconcileReport) error {
	entries, err := r.journal.List(ctx)
	var corrupt *CorruptEntriesError
	if errors.As(err, &corrupt) {
		r.logger.Error("corrupt journal entries quarantined", zap.Strings("tx_hashes", corrupt.TxHashes))
		report.Errors += len(corrupt.TxHashes)
	} else if err != nil {
		return err
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log := r.logger.With(zap.String("tx_hash", entry.TxHash))

		state, err := r.gateway.TransactionState(ctx, entry.TxHash)
		if err != nil {
			log.Warn("receipt lookup failed", zap.Error(err))
			report.Errors++
			continue
		}

		switch state {
		case chain.TxSucceeded:
			if entry.Project == nil {
				log.Error("journal entry has no project snapshot")
				report.Errors++
				continue
			}
			record := *entry.Project
			record.ChainStatus = projects.ChainStatusConfirmed
			if err := r.registry.Persist(ctx, &record); err != nil {
				log.Warn("failed to repair record", zap.Error(err))
				report.Errors++
				continue
			}
			r.remove(ctx, entry.TxHash, report)
			report.Repaired++
			log.Info("record repaired from journal", zap.String("project_id", record.ID))

		case chain.TxFailed:
			r.remove(ctx, entry.TxHash, report)
			report.Dropped++
			log.Warn("journaled transaction reverted, entry dropped")

		default:
			if r.now().Sub(entry.CreatedAt) > r.maxPendingAge {
				r.remove(ctx, entry.TxHash, report)
				report.Dropped++
				log.Warn("journaled transaction never mined, entry dropped")
				continue
			}
			r.rebroadcast(ctx, entry, log, report)
			report.Pending++
		}
	}
	return nil
}

func (r *Reconciler) settleSubmitted(ctx context.Context, report *ReconcileReport) error {
	records, err := r.registry.ListByChainStatus(ctx, projects.ChainStatusSubmitted, r.batchSize)
	if err != nil {
		return err
	}

	for _, record := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		state, err := r.gateway.TransactionState(ctx, record.TxHash)
		if err != nil {
			report.Errors++
			continue
		}

		var to projects.ChainStatus
		switch {
		case state == chain.TxSucceeded:
			to = projects.ChainStatusConfirmed
		case state == chain.TxFailed:
			to = projects.ChainStatusReverted
		case r.now().Sub(record.CreatedAt) > r.maxPendingAge:
			to = projects.ChainStatusReverted
		default:
			report.Pending++
			continue
		}

		updated, err := r.registry.UpdateChainStatus(ctx, record.ID, projects.ChainStatusSubmitted, to)
		if err != nil {
			r.logger.Warn("failed to update chain status", zap.String("project_id", record.ID), zap.Error(err))
			report.Errors++
			continue
		}
		if !updated {
			continue
		}
		switch {
		case to == projects.ChainStatusConfirmed:
			report.Confirmed++
		case state == chain.TxFailed:
			report.Reverted++
		default:
			report.Dropped++
		}
	}
	return nil
}

// rebroadcast resends a pending entry's signed transaction in case the node
// dropped it after an ambiguous broadcast.
func (r *Reconciler) rebroadcast(ctx context.Context, entry JournalEntry, log *zap.Logger, report *ReconcileReport) {
	if entry.RawTx == "" {
		return
	}
	raw, err := hex.DecodeString(entry.RawTx)
	if err != nil {
		log.Error("journal entry has undecodable raw transaction", zap.Error(err))
		report.Errors++
		return
	}
	if err := r.gateway.Rebroadcast(ctx, raw); err != nil {
		log.Warn("rebroadcast failed", zap.Error(err))
		report.Errors++
		return
	}
	report.Rebroadcast++
}

func (r *Reconciler) remove(ctx context.Context, txHash string, report *ReconcileReport) {
	if err := r.journal.Remove(ctx, txHash); err != nil {
		r.logger.Warn("failed to remove journal entry", zap.String("tx_hash", txHash), zap.Error(err))
		report.Errors++
	}
}
