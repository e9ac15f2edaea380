package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/pcosync/internal/endpoint"
	"github.com/hitoshi/pcosync/internal/metrics"
	"github.com/hitoshi/pcosync/internal/model"
	"github.com/hitoshi/pcosync/internal/normalize"
	"github.com/hitoshi/pcosync/internal/schema"
)

// defaultBatchSize は1チャンクあたりの書き込み行数の既定値。
const defaultBatchSize = 500

// Fetcher はエンドポイントの全ページ取得のインターフェース。
// 転送エラー時は取得済みアイテムとエラーの両方を返す。
type Fetcher interface {
	FetchAll(ctx context.Context, creds model.Credentials, def endpoint.Definition, filters []endpoint.Filter) ([]model.RawItem, error)
}

// Store は書き込み先ストアのインターフェース。
type Store interface {
	EnsureDataset(ctx context.Context, dataset string) error
	EnsureTable(ctx context.Context, dataset, table, idField string, fields []schema.Field) error
	ExistingIDs(ctx context.Context, dataset, table, idField string) (map[string]struct{}, error)
	AppendRows(ctx context.Context, dataset, table string, fields []schema.Field, rows []model.Row) error
	MergeRows(ctx context.Context, dataset, table, idField string, fields []schema.Field, rows []model.Row) error
}

// Engine はフェッチ → 正規化 → 分類 → バッチ書き込みのパイプラインを
// 1エンドポイント単位で実行し、クライアント×エンドポイントの直積を
// 障害隔離しながら順に処理する。
type Engine struct {
	fetcher    Fetcher
	store      Store
	normalizer *normalize.Normalizer
	metrics    metrics.SyncMetricsCollector
	logger     *slog.Logger
	defs       []endpoint.Definition
	batchSize  int

	// tableLocks は書き込み先テーブル単位のロック。
	// 同一テーブルに対する既存IDスナップショットと書き込みが
	// 並行実行と交錯しないことを保証する（同時書き込みは常に1つ）。
	mu         sync.Mutex
	tableLocks map[string]*sync.Mutex
}

// NewEngine はEngineの新しいインスタンスを生成する。
// batchSizeが0以下の場合はデフォルト値500を使用する。
func NewEngine(
	fetcher Fetcher,
	st Store,
	normalizer *normalize.Normalizer,
	collector metrics.SyncMetricsCollector,
	logger *slog.Logger,
	defs []endpoint.Definition,
	batchSize int,
) *Engine {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Engine{
		fetcher:    fetcher,
		store:      st,
		normalizer: normalizer,
		metrics:    collector,
		logger:     logger,
		defs:       defs,
		batchSize:  batchSize,
		tableLocks: make(map[string]*sync.Mutex),
	}
}

// Run は全クライアント×全エンドポイントを順に同期する。
// 1ペアの失敗（panicを含む）はそのペアの結果に記録され、
// 残りのペアの実行を妨げない。キャンセルはペア間でのみ確認し、
// 実行中のペアはバッチを完了してから終了する。
func (e *Engine) Run(ctx context.Context, clients []model.Client, asOf time.Time) *RunReport {
	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}

	e.logger.Info("同期実行を開始します",
		slog.String("run_id", report.RunID),
		slog.Int("clients", len(clients)),
		slog.Int("endpoints", len(e.defs)),
		slog.Time("as_of", asOf),
	)

	for _, client := range clients {
		for _, def := range e.defs {
			// キャンセルはペアの境界でのみ確認する
			if ctx.Err() != nil {
				e.logger.Warn("キャンセルにより同期実行を中断します",
					slog.String("run_id", report.RunID),
				)
				report.FinishedAt = time.Now()
				return report
			}

			result := e.syncPair(ctx, client, def, asOf)
			report.Results = append(report.Results, result)
		}
	}

	report.FinishedAt = time.Now()
	duration := report.FinishedAt.Sub(report.StartedAt)
	e.metrics.RecordSyncDuration(duration)

	e.logger.Info("同期実行が完了しました",
		slog.String("run_id", report.RunID),
		slog.Int("fetched", report.TotalFetched()),
		slog.Int("inserted", report.TotalInserted()),
		slog.Int("updated", report.TotalUpdated()),
		slog.Int("skipped", report.TotalSkipped()),
		slog.Int("failures", len(report.Failures())),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return report
}

// syncPair は1ペアをpanic隔離付きで同期する。
func (e *Engine) syncPair(ctx context.Context, client model.Client, def endpoint.Definition, asOf time.Time) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result.Err = &model.PairError{
				Client:   client.Name,
				Endpoint: def.Name,
				Err:      fmt.Errorf("panic: %v", rec),
			}
			e.metrics.RecordEndpointFailure(def.Name)
			e.logger.Error("ペア処理でpanicが発生しました",
				slog.String("client", client.Name),
				slog.String("endpoint", def.Name),
				slog.Any("panic", rec),
			)
		}
	}()

	// 同一テーブルへの書き込みは常に1ペアのみ
	lock := e.tableLock(client.Dataset + "." + def.Table)
	lock.Lock()
	defer lock.Unlock()

	result = e.SyncEndpoint(ctx, client, def, asOf)
	if result.Failed() {
		e.metrics.RecordEndpointFailure(def.Name)
		e.logger.Error("ペア処理に失敗しました",
			slog.String("client", client.Name),
			slog.String("endpoint", def.Name),
			slog.String("error", result.Err.Error()),
		)
	}
	return result
}

// SyncEndpoint は1ペア分のパイプラインを実行する。
//  1. フィルタ計算（日付フィルタ付きエンドポイントはasOf以降に限定）
//  2. フェッチ（転送エラーは部分結果で継続）
//  3. 既存IDスナップショット取得（失敗は全件新規扱いで継続）
//  4. 正規化と insert / update への分類
//  5. バッチ書き込み（チャンク単位で障害隔離）
func (e *Engine) SyncEndpoint(ctx context.Context, client model.Client, def endpoint.Definition, asOf time.Time) Result {
	result := Result{
		Client:   client.Name,
		Endpoint: def.Name,
		Table:    def.Table,
	}

	var filters []endpoint.Filter
	if def.DateFilterKey != "" {
		filters = append(filters, endpoint.DateRangeFilter{Key: def.DateFilterKey, Since: asOf})
	}

	items, fetchErr := e.fetcher.FetchAll(ctx, client.Credentials, def, filters)
	if fetchErr != nil {
		// 転送エラーは警告に格下げし、蓄積済みの部分結果で継続する
		result.Partial = true
		e.logger.Warn("転送エラーのため部分結果で継続します",
			slog.String("client", client.Name),
			slog.String("endpoint", def.Name),
			slog.Int("items", len(items)),
			slog.String("error", fetchErr.Error()),
		)
	}

	result.Fetched = len(items)
	e.metrics.RecordItemsFetched(def.Name, len(items))

	if len(items) == 0 {
		e.logger.Info("取得アイテムがないためストア操作をスキップします",
			slog.String("client", client.Name),
			slog.String("endpoint", def.Name),
		)
		return result
	}

	if err := e.store.EnsureDataset(ctx, client.Dataset); err != nil {
		result.Err = &model.PairError{Client: client.Name, Endpoint: def.Name, Err: err}
		return result
	}
	if err := e.store.EnsureTable(ctx, client.Dataset, def.Table, def.IDField, def.Schema); err != nil {
		result.Err = &model.PairError{Client: client.Name, Endpoint: def.Name, Err: err}
		return result
	}

	// 既存IDのスナップショットはパスごとに1回のみ取得する。
	// パス実行中に並行して挿入されたレコードは見えない（許容済みの制約）。
	existing, err := e.store.ExistingIDs(ctx, client.Dataset, def.Table, def.IDField)
	if err != nil {
		e.logger.Warn("既存IDの取得に失敗したため全レコードを新規として扱います",
			slog.String("client", client.Name),
			slog.String("table", def.Table),
			slog.String("error", err.Error()),
		)
		existing = map[string]struct{}{}
	}

	var inserts, updates []model.Row
	for _, item := range items {
		row, coerceFailures, ok := e.normalizer.NormalizeItem(item, def)
		if !ok {
			result.Skipped++
			continue
		}
		result.CoerceFailures += coerceFailures

		id := row[def.IDField].(string)
		if _, exists := existing[id]; exists {
			updates = append(updates, row)
		} else {
			inserts = append(inserts, row)
		}
	}

	e.metrics.RecordItemsSkipped(def.Name, result.Skipped)
	e.metrics.RecordCoerceFailures(def.Name, result.CoerceFailures)

	var writeErrs []error

	// 挿入: チャンク単位の追記書き込み。チャンクNの失敗はチャンクN-1を
	// ロールバックせず、後続チャンクの書き込みも妨げない。
	for chunkIdx, chunk := range chunkRows(inserts, e.batchSize) {
		if err := e.store.AppendRows(ctx, client.Dataset, def.Table, def.Schema, chunk); err != nil {
			werr := &model.WriteError{Table: client.Dataset + "." + def.Table, Chunk: chunkIdx, Err: err}
			writeErrs = append(writeErrs, werr)
			e.logger.Error("挿入チャンクの書き込みに失敗しました",
				slog.String("client", client.Name),
				slog.String("table", def.Table),
				slog.Int("chunk", chunkIdx),
				slog.Int("rows", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Inserted += len(chunk)
	}

	// 更新: ステージング経由のIDマージ
	for chunkIdx, chunk := range chunkRows(updates, e.batchSize) {
		if err := e.store.MergeRows(ctx, client.Dataset, def.Table, def.IDField, def.Schema, chunk); err != nil {
			werr := &model.WriteError{Table: client.Dataset + "." + def.Table, Chunk: chunkIdx, Err: err}
			writeErrs = append(writeErrs, werr)
			e.logger.Error("更新チャンクのマージに失敗しました",
				slog.String("client", client.Name),
				slog.String("table", def.Table),
				slog.Int("chunk", chunkIdx),
				slog.Int("rows", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Updated += len(chunk)
	}

	e.metrics.RecordRowsInserted(def.Name, result.Inserted)
	e.metrics.RecordRowsUpdated(def.Name, result.Updated)
	result.Err = errors.Join(writeErrs...)

	e.logger.Info("エンドポイント同期が完了しました",
		slog.String("client", client.Name),
		slog.String("endpoint", def.Name),
		slog.Int("fetched", result.Fetched),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.Int("coerce_failures", result.CoerceFailures),
		slog.Bool("partial", result.Partial),
	)

	return result
}

// tableLock は書き込み先テーブルのロックを取得（必要なら生成）する。
func (e *Engine) tableLock(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, exists := e.tableLocks[key]
	if !exists {
		lock = &sync.Mutex{}
		e.tableLocks[key] = lock
	}
	return lock
}

// chunkRows は行スライスをサイズ上限で分割する。
func chunkRows(rows []model.Row, size int) [][]model.Row {
	if len(rows) == 0 {
		return nil
	}
	var chunks [][]model.Row
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
