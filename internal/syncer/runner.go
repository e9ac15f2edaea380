package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/pcosync/internal/model"
	"github.com/hitoshi/pcosync/internal/store"
)

// ErrRunInProgress は同期実行がすでに進行中であることを示す。
var ErrRunInProgress = errors.New("同期実行がすでに進行中です")

// RunLogger は同期実行のブックキーピング記録先のインターフェース。
type RunLogger interface {
	InsertRunRecord(ctx context.Context, rec store.RunRecord) error
}

// Runner は同期実行の起動を管理する。
// 同時に走る実行は常に1つで、進行中の再起動要求は拒否される。
type Runner struct {
	engine  *Engine
	clients []model.Client
	runLog  RunLogger
	logger  *slog.Logger

	// baseCtx は非同期起動の実行コンテキスト。呼び出し元のリクエスト
	// コンテキストに縛られず、プロセスの寿命に従う。
	baseCtx context.Context

	running atomic.Bool
}

// NewRunner はRunnerを生成する。
func NewRunner(
	baseCtx context.Context,
	engine *Engine,
	clients []model.Client,
	runLog RunLogger,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		engine:  engine,
		clients: clients,
		runLog:  runLog,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// RunSync は同期実行を起動し、完了まで待って結果を返す。
// すでに実行中の場合はErrRunInProgressを返す。
func (r *Runner) RunSync(ctx context.Context) (*RunReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	report := r.engine.Run(ctx, r.clients, Yesterday(time.Now()))
	r.recordRun(ctx, report)
	return report, nil
}

// TriggerAsync は同期実行をバックグラウンドで起動し、即座に戻る。
// すでに実行中の場合はErrRunInProgressを返す。
func (r *Runner) TriggerAsync() error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}

	go func() {
		defer r.running.Store(false)

		report := r.engine.Run(r.baseCtx, r.clients, Yesterday(time.Now()))
		r.recordRun(r.baseCtx, report)
	}()
	return nil
}

// recordRun は実行結果をブックキーピングテーブルへ記録する。
// 記録の失敗は同期実行自体の成否に影響しない。
func (r *Runner) recordRun(ctx context.Context, report *RunReport) {
	rec := store.RunRecord{
		ID:         report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Clients:    len(r.clients),
		Fetched:    report.TotalFetched(),
		Inserted:   report.TotalInserted(),
		Updated:    report.TotalUpdated(),
		Skipped:    report.TotalSkipped(),
		Failures:   len(report.Failures()),
	}
	if err := r.runLog.InsertRunRecord(ctx, rec); err != nil {
		r.logger.Warn("同期実行記録の保存に失敗しました",
			slog.String("run_id", report.RunID),
			slog.String("error", err.Error()),
		)
	}
}

// Yesterday は前日のUTC 0時を返す。日付フィルタの基準時刻として使う。
func Yesterday(now time.Time) time.Time {
	y := now.UTC().AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
}
