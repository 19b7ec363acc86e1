package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailsprint/engine"
)

// ReplyWorker periodically checks every active mailbox for replies.
type ReplyWorker struct {
	checker  *engine.ReplyChecker
	logger   *logrus.Logger
	interval time.Duration
}

func NewReplyWorker(checker *engine.ReplyChecker, logger *logrus.Logger, interval time.Duration) *ReplyWorker {
	return &ReplyWorker{
		checker:  checker,
		logger:   logger,
		interval: interval,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.logger.Info("Starting reply worker...")
	ticker := time.NewTicker(rw.interval)

	for {
		select {
		case <-ticker.C:
			report := rw.checker.Run(ctx)
			if report.Err != "" {
				rw.logger.WithField("error", report.Err).Error("Reply pass failed")
				continue
			}
			if len(report.Results) > 0 {
				rw.logger.WithField("results", len(report.Results)).Info("Reply pass finished")
			}
		case <-ctx.Done():
			rw.logger.Info("Stopping reply worker...")
			ticker.Stop()
			return
		}
	}
}
