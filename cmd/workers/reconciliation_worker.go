package main

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"crowdfund/portal-backend/internal/funding"
)

// Reconciler runs one reconciliation pass
type Reconciler interface {
	Run(ctx context.Context) (funding.ReconcileReport, error)
}

// ReconciliationWorker runs the reconciler on a cron schedule
type ReconciliationWorker struct {
	reconciler Reconciler
	cron       *cron.Cron
	logger     *zap.Logger
	config     ReconciliationWorkerConfig

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	first   sync.WaitGroup
}

// ReconciliationWorkerConfig configuration for the reconciliation worker
type ReconciliationWorkerConfig struct {
	Schedule    string
	PassTimeout time.Duration
}

// DefaultReconciliationWorkerConfig returns default configuration
func DefaultReconciliationWorkerConfig() ReconciliationWorkerConfig {
	return ReconciliationWorkerConfig{
		Schedule:    "@every 1m",
		PassTimeout: 5 * time.Minute,
	}
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(reconciler Reconciler, logger *zap.Logger, config ReconciliationWorkerConfig) *ReconciliationWorker {
	cl := cronLogger{logger: logger}
	return &ReconciliationWorker{
		reconciler: reconciler,
		cron:       cron.New(cron.WithLogger(cl)),
		logger:     logger,
		config:     config,
	}
}

// Start schedules the job and runs a first pass immediately
func (w *ReconciliationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	// The immediate pass and the scheduled ones share one wrapped job, so
	// SkipIfStillRunning keeps them from overlapping.
	cl := cronLogger{logger: w.logger}
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { w.RunOnce(w.ctx) }))
	if _, err := w.cron.AddJob(w.config.Schedule, job); err != nil {
		w.cancel()
		return err
	}

	w.logger.Info("Starting reconciliation worker", zap.String("schedule", w.config.Schedule))
	w.first.Add(1)
	go func() {
		defer w.first.Done()
		job.Run()
	}()
	w.cron.Start()
	w.running = true
	return nil
}

// Stop stops scheduling and waits for running passes, the immediate one
// included, to finish
func (w *ReconciliationWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	<-w.cron.Stop().Done()
	w.cancel()
	w.first.Wait()
	w.running = false
	w.logger.Info("Reconciliation worker stopped")
}

// RunOnce performs a single pass bounded by the pass timeout
func (w *ReconciliationWorker) RunOnce(ctx context.Context) funding.ReconcileReport {
	ctx, cancel := context.WithTimeout(ctx, w.config.PassTimeout)
	defer cancel()

	report, err := w.reconciler.Run(ctx)
	if err != nil {
		w.logger.Error("Reconciliation pass failed", zap.Error(err))
	}
	return report
}

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
