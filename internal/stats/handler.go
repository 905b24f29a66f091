package stats

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/saas-dashboard/internal/account"
	"github.com/yourusername/saas-dashboard/internal/auth"
	"github.com/yourusername/saas-dashboard/internal/session"
)

// sessionHistoryLimit はダッシュボードに表示する履歴の最大件数です。
const sessionHistoryLimit = 10

// Handler はダッシュボード系エンドポイントの gin ハンドラー群です。
// いずれも認証ミドルウェアの内側で使用します。
type Handler struct {
	manager  *Manager
	registry *session.Registry
	accounts *account.Store
	logger   *log.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(manager *Manager, registry *session.Registry, accounts *account.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		manager:  manager,
		registry: registry,
		accounts: accounts,
		logger:   logger,
	}
}

// Data は GET /api/dashboard/data のハンドラーです。
// 全体統計に加えて、呼び出しユーザー自身の累計セッション数を返します。
func (h *Handler) Data(c *gin.Context) {
	claims, ok := auth.CurrentClaims(c)
	if !ok {
		h.respondInternal(c, "missing claims in context")
		return
	}

	snapshot, err := h.manager.CurrentSnapshot(c.Request.Context())
	if err != nil {
		h.respondInternal(c, fmt.Sprintf("failed to load stats snapshot: %v", err))
		return
	}

	sessions, err := h.registry.HistoryForUser(c.Request.Context(), claims.UserID, 0)
	if err != nil {
		h.respondInternal(c, fmt.Sprintf("failed to load user sessions: %v", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalUsers":    snapshot.TotalUsers,
		"totalSessions": len(sessions),
		"totalRevenue":  snapshot.TotalRevenue,
	})
}

// SessionHistory は GET /api/dashboard/session-history のハンドラーです。
// 呼び出しユーザーの直近セッションを新しい順に返します。
func (h *Handler) SessionHistory(c *gin.Context) {
	claims, ok := auth.CurrentClaims(c)
	if !ok {
		h.respondInternal(c, "missing claims in context")
		return
	}

	acct, err := h.accounts.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondInternal(c, fmt.Sprintf("failed to load account: %v", err))
		return
	}

	sessions, err := h.registry.HistoryForUser(c.Request.Context(), claims.UserID, sessionHistoryLimit)
	if err != nil {
		h.respondInternal(c, fmt.Sprintf("failed to load session history: %v", err))
		return
	}

	now := time.Now().UTC()
	entries := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		// 継続中のセッションは現在時刻までを所要時間とみなす
		end := now
		if sess.EndTime != nil {
			end = *sess.EndTime
		}
		minutes := int(end.Sub(sess.StartTime).Round(time.Minute) / time.Minute)

		var endTime any = "Active"
		if sess.EndTime != nil {
			endTime = sess.EndTime
		}

		entries = append(entries, gin.H{
			"sessionId": sess.ID,
			"userName":  acct.Name,
			"email":     acct.Email,
			"startTime": sess.StartTime,
			"endTime":   endTime,
			"duration":  fmt.Sprintf("%d minutes", minutes),
			"status":    sess.Status,
		})
	}
	c.JSON(http.StatusOK, entries)
}

// RevenueHistory は GET /api/dashboard/revenue-history のハンドラーです。
// 収益データは未接続のため固定のモック系列を返します。
func (h *Handler) RevenueHistory(c *gin.Context) {
	now := time.Now().UTC()
	c.JSON(http.StatusOK, []gin.H{
		{"date": now, "revenue": 1000},
		{"date": now, "revenue": 1500},
		{"date": now, "revenue": 2000},
	})
}

// SessionStats は GET /api/dashboard/session-stats のハンドラーです。
// サーバー全体のセッション集計値を単一スナップショットで返します。
func (h *Handler) SessionStats(c *gin.Context) {
	counts, err := h.registry.CountSnapshot(c.Request.Context())
	if err != nil {
		h.respondInternal(c, fmt.Sprintf("failed to count sessions: %v", err))
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) respondInternal(c *gin.Context, detail string) {
	h.logger.Printf("dashboard request failed: %s", detail)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "サーバー内部でエラーが発生しました",
	})
}
