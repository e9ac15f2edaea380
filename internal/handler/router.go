package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pcosync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Runner SyncRunnerService
	Logger *slog.Logger

	// MetricsHandler は /metrics にマウントされるハンドラ。
	// nilの場合はマウントしない。
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	h := NewSyncHandler(deps.Runner, deps.Logger)

	r.Get("/health", h.Health)

	r.Route("/sync", func(r chi.Router) {
		// POST /sync - 非同期起動（202）
		r.Post("/", h.Trigger)
		// POST /sync/run - 同期起動、完了までブロックしレポートを返す
		r.Post("/run", h.Run)
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	return r
}
