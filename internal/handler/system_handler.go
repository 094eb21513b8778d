package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/universal/internal/database"
)

// healthCheckTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// SystemHandler は疎通確認・ヘルスチェック・プロフィール参照のHTTPハンドラー。
type SystemHandler struct {
	db database.Pinger
}

// NewSystemHandler はSystemHandlerを生成する。dbがnilの場合はDB疎通確認を行わない。
func NewSystemHandler(db database.Pinger) *SystemHandler {
	return &SystemHandler{db: db}
}

// Ping は疎通確認に応答する。
// GET /
func (h *SystemHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
}

// Health はDBへの疎通を確認し、サービスの稼働状況を返す。
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := database.Ping(r.Context(), h.db, healthCheckTimeout); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Profile は呼び出し元の解決済みプロフィールを返す。
// GET /profile
func (h *SystemHandler) Profile(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, caller)
}
