package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailsprint/engine"
	"mailsprint/models"
	"mailsprint/store"
)

// DispatchWorker periodically runs a dispatch pass over all active
// campaigns and resets the per-account daily usage counters at midnight.
type DispatchWorker struct {
	store      *store.Store
	dispatcher *engine.Dispatcher
	logger     *logrus.Logger
	interval   time.Duration
}

func NewDispatchWorker(st *store.Store, dispatcher *engine.Dispatcher, logger *logrus.Logger, interval time.Duration) *DispatchWorker {
	return &DispatchWorker{
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	dw.logger.Info("Starting dispatch worker...")
	ticker := time.NewTicker(dw.interval)
	resetTimer := time.NewTimer(untilMidnight(time.Now().UTC()))

	for {
		select {
		case <-ticker.C:
			dw.runPass(ctx)
		case <-resetTimer.C:
			dw.resetDailyCounters(ctx)
			resetTimer.Reset(untilMidnight(time.Now().UTC()))
		case <-ctx.Done():
			dw.logger.Info("Stopping dispatch worker...")
			ticker.Stop()
			resetTimer.Stop()
			return
		}
	}
}

func (dw *DispatchWorker) runPass(ctx context.Context) {
	report := dw.dispatcher.Run(ctx, "")
	entry := dw.logger.WithFields(logrus.Fields{
		"sent":     report.Sent(),
		"results":  len(report.Results),
		"warnings": len(report.Warnings),
	})
	if report.Err != "" {
		entry.WithField("error", report.Err).Error("Dispatch pass failed")
		return
	}
	if len(report.Results) > 0 || len(report.Warnings) > 0 {
		entry.Info("Dispatch pass finished")
	}
}

// resetDailyCounters zeroes sent_today on every sending account so the new
// day starts with full quota.
func (dw *DispatchWorker) resetDailyCounters(ctx context.Context) {
	dw.logger.Info("Resetting daily send counters...")

	var accounts []models.SendingAccount
	if err := dw.store.List(ctx, store.KindAccounts, &accounts); err != nil {
		dw.logger.WithError(err).Error("Failed to list sending accounts")
		return
	}
	for _, account := range accounts {
		if account.SentToday == 0 {
			continue
		}
		if err := dw.store.Update(ctx, store.KindAccounts, account.ID, map[string]interface{}{
			"sent_today": 0,
		}); err != nil {
			dw.logger.WithError(err).WithField("account", account.EmailAddress).Error("Failed to reset daily counter")
		}
	}
}

func untilMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(now)
}
