package account

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler はユーザー一覧系エンドポイントの gin ハンドラー群です。
type Handler struct {
	store  *Store
	logger *log.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(store *Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Users は GET /api/users のハンドラーです。パスワードハッシュは含めません。
func (h *Handler) Users(c *gin.Context) {
	accounts, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Printf("failed to list accounts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました",
		})
		return
	}

	users := make([]Public, 0, len(accounts))
	for _, acct := range accounts {
		users = append(users, acct.Public())
	}
	c.JSON(http.StatusOK, users)
}

// TotalUsers は GET /api/total-users のハンドラーです。
func (h *Handler) TotalUsers(c *gin.Context) {
	count, err := h.store.Count(c.Request.Context())
	if err != nil {
		h.logger.Printf("failed to count accounts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalUsers": count})
}
