// Package handler はHTTP APIのハンドラとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/pcosync/internal/syncer"
)

// SyncRunnerService は同期実行の起動インターフェース。
type SyncRunnerService interface {
	// RunSync は同期実行を起動し、完了まで待って結果を返す。
	RunSync(ctx context.Context) (*syncer.RunReport, error)
	// TriggerAsync は同期実行をバックグラウンドで起動し、即座に戻る。
	TriggerAsync() error
}

// SyncHandler は同期実行APIのハンドラ。
type SyncHandler struct {
	runner SyncRunnerService
	logger *slog.Logger
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(runner SyncRunnerService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{runner: runner, logger: logger}
}

// Trigger は POST /sync を処理する。
// 同期実行をバックグラウンドで起動し、202を返す。
// すでに実行中の場合は409を返す。
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.TriggerAsync(); err != nil {
		if errors.Is(err, syncer.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "sync already in progress",
			})
			return
		}
		h.logger.Error("同期実行の起動に失敗しました",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to start sync",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

// Run は POST /sync/run を処理する。
// 同期実行の完了まで待ち、実行レポートをJSONで返す。
// すでに実行中の場合は409を返す。
func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunSync(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "sync already in progress",
			})
			return
		}
		h.logger.Error("同期実行に失敗しました",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "sync run failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Health は GET /health を処理する。
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
