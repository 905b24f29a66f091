package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/saas-dashboard/internal/token"
)

// ContextClaimsKey は、ハンドラー間で認証済みクレームを共有するためのキーです。
const ContextClaimsKey = "auth.claims"

// RequireAuth は保護エンドポイント用のミドルウェアを返します。
// ヘッダー欠落は 401、形式不正は 400、署名不正・期限切れ・失効済みは
// いずれも同一の 401 応答になります（どのチェックで落ちたかは漏らさない）。
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Abort()
			return
		}

		claims, err := h.manager.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"code":    "UNAUTHENTICATED",
					"message": "認証が必要です",
				})
				return
			}
			h.logger.Printf("authentication check failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "サーバー内部でエラーが発生しました",
			})
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// CurrentClaims はコンテキストから認証済みクレームを取り出します。
func CurrentClaims(c *gin.Context) (*token.Claims, bool) {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.Claims)
	return claims, ok
}

// bearerToken は Authorization ヘッダーからベアラートークンを取り出します。
// 失敗時はレスポンスを書き込んで false を返します（欠落=401、形式不正=400）。
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHENTICATED",
			"message": "認証トークンがありません",
		})
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "Authorization ヘッダーは Bearer 形式で指定してください",
		})
		return "", false
	}
	return parts[1], true
}
