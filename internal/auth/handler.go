package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/saas-dashboard/internal/account"
	"github.com/yourusername/saas-dashboard/internal/password"
	"github.com/yourusername/saas-dashboard/internal/session"
)

// Handler は認証・プロフィールエンドポイントの gin ハンドラー群です。
type Handler struct {
	manager  *Manager
	uploader Uploader
	logger   *log.Logger
}

// NewHandler は Handler を作成します。uploader は画像アップロードを
// 使わない構成では nil で構いません。
func NewHandler(manager *Manager, uploader Uploader, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		manager:  manager,
		uploader: uploader,
		logger:   logger,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register は POST /api/auth/register のハンドラーです。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": err.Error(),
		})
		return
	}

	acct, err := h.manager.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    acct.Public(),
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login は POST /api/auth/login のハンドラーです。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": err.Error(),
		})
		return
	}

	result, err := h.manager.Login(c.Request.Context(), req.Email, req.Password, session.Metadata{
		IPAddress:  c.ClientIP(),
		DeviceInfo: c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   result.Token,
		"session": result.Session,
		"user": gin.H{
			"id":    result.Account.ID,
			"name":  result.Account.Name,
			"email": result.Account.Email,
		},
	})
}

// Logout は POST /api/auth/logout のハンドラーです。
// 既に終了・期限切れのセッションに対しては 404 を返します。
func (h *Handler) Logout(c *gin.Context) {
	tokenString, ok := bearerToken(c)
	if !ok {
		return
	}

	if _, err := h.manager.Logout(c.Request.Context(), tokenString); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

// ActiveSessions は GET /api/auth/active-sessions のハンドラーです。
func (h *Handler) ActiveSessions(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHENTICATED",
			"message": "認証が必要です",
		})
		return
	}

	sessions, err := h.manager.ActiveSessions(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// respondError はエラーをHTTPレスポンスへ変換します。
// 分類できないエラーは内部ログにのみ詳細を残し、クライアントには汎用エラーを返します。
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, account.ErrDuplicateEmail):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "DUPLICATE_EMAIL",
			"message": "このメールアドレスは既に登録されています",
		})
	case errors.Is(err, ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_CREDENTIALS",
			"message": "メールアドレスまたはパスワードが正しくありません",
		})
	case errors.Is(err, ErrDuplicateSkill):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "DUPLICATE_SKILL",
			"message": "このスキルは既に登録されています",
		})
	case errors.Is(err, password.ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "パスワードが長すぎます",
		})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "SESSION_NOT_FOUND",
			"message": "有効なセッションが見つかりません",
		})
	case errors.Is(err, account.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "USER_NOT_FOUND",
			"message": "ユーザーが見つかりません",
		})
	case errors.Is(err, ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHENTICATED",
			"message": "認証が必要です",
		})
	default:
		h.logger.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました",
		})
	}
}
