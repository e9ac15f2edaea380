// Package syncjob は同期実行の定期スケジューリングを提供する。
package syncjob

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/pcosync/internal/syncer"
)

// defaultInterval は同期サイクルの既定間隔。
const defaultInterval = 24 * time.Hour

// SyncTriggerService は同期実行の起動インターフェース。
type SyncTriggerService interface {
	// RunSync は同期実行を起動し、完了まで待って結果を返す。
	RunSync(ctx context.Context) (*syncer.RunReport, error)
}

// Scheduler は同期実行の定期起動を行う。
// ティッカーで周期的に同期サイクルを起動し、起動直後にも1回実行する。
type Scheduler struct {
	trigger  SyncTriggerService
	logger   *slog.Logger
	interval time.Duration
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// intervalが0以下の場合はデフォルト値24時間を使用する。
func NewScheduler(trigger SyncTriggerService, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		trigger:  trigger,
		logger:   logger,
		interval: interval,
	}
}

// Start はティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", s.interval),
	)

	// 起動直後に1回実行
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle は同期サイクルを1回起動する。
// すでに実行中の場合はこのサイクルをスキップする。
func (s *Scheduler) runCycle(ctx context.Context) {
	report, err := s.trigger.RunSync(ctx)
	if err != nil {
		if errors.Is(err, syncer.ErrRunInProgress) {
			s.logger.Warn("前回の同期が進行中のためこのサイクルをスキップします")
			return
		}
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("同期サイクルが完了しました",
		slog.String("run_id", report.RunID),
		slog.Int("failures", len(report.Failures())),
	)
}
