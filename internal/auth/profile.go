package auth

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/saas-dashboard/internal/account"
	"github.com/yourusername/saas-dashboard/internal/password"
	"github.com/yourusername/saas-dashboard/internal/storage"
)

// ErrDuplicateSkill は登録済みスキルの再追加要求に対して返されます。
var ErrDuplicateSkill = errors.New("skill already exists")

// Uploader はプロフィール画像の保存先が実装します。
type Uploader interface {
	SaveImage(fh *multipart.FileHeader) (string, error)
}

// ProfileUpdate はプロフィール更新の入力です。空のフィールドは変更しません。
type ProfileUpdate struct {
	Name     string
	Email    string
	Password string
}

// Profile はユーザー自身のアカウント情報を返します。
func (m *Manager) Profile(ctx context.Context, userID string) (*account.Account, error) {
	return m.accounts.GetByID(ctx, userID)
}

// UpdateProfile は指定されたフィールドのみを更新します。
// パスワードは再ハッシュされ、メールアドレス変更時は一意性が再検証されます。
func (m *Manager) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*account.Account, error) {
	var digest string
	if upd.Password != "" {
		var err error
		digest, err = password.Hash(upd.Password)
		if err != nil {
			return nil, err
		}
	}

	return m.accounts.Update(ctx, userID, func(a *account.Account) error {
		if upd.Name != "" {
			a.Name = upd.Name
		}
		if upd.Email != "" {
			a.Email = upd.Email
		}
		if digest != "" {
			a.PasswordHash = digest
		}
		return nil
	})
}

// AddSkill はスキルを追加します。同名スキルの重複は拒否します。
func (m *Manager) AddSkill(ctx context.Context, userID, name string, years int) (*account.Account, error) {
	return m.accounts.Update(ctx, userID, func(a *account.Account) error {
		for _, s := range a.Skills {
			if s.Name == name {
				return ErrDuplicateSkill
			}
		}
		a.Skills = append(a.Skills, account.Skill{Name: name, YearsOfExperience: years})
		return nil
	})
}

// SetAvatar はプロフィール画像URLを更新します。
func (m *Manager) SetAvatar(ctx context.Context, userID, url string) (*account.Account, error) {
	return m.accounts.Update(ctx, userID, func(a *account.Account) error {
		a.AvatarURL = url
		return nil
	})
}

// Profile は GET /api/auth/profile のハンドラーです。
func (h *Handler) Profile(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHENTICATED",
			"message": "認証が必要です",
		})
		return
	}

	acct, err := h.manager.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct.Public())
}

type profileUpdateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfile は PUT /api/auth/profile のハンドラーです。
func (h *Handler) UpdateProfile(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHENTICATED",
			"message": "認証が必要です",
		})
		return
	}

	var req profileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": err.Error(),
		})
		return
	}

	acct, err := h.manager.UpdateProfile(c.Request.Context(), claims.UserID, ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    acct.Public(),
	})
}

type addSkillRequest struct {
	Skill             string `json:"skill" binding:"required"`
	YearsOfExperience *int   `json:"yearsOfExperience" binding:"required"`
}

// AddSkill は PUT /api/auth/profile/skills のハンドラーです。
func (h *Handler) AddSkill(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHENTICATED",
			"message": "認証が必要です",
		})
		return
	}

	var req addSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "skill と yearsOfExperience を指定してください",
		})
		return
	}

	acct, err := h.manager.AddSkill(c.Request.Context(), claims.UserID, req.Skill, *req.YearsOfExperience)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Skill added successfully",
		"skills":  acct.Skills,
	})
}

// UploadAvatar は PUT /api/auth/profile/image のハンドラーです。
func (h *Handler) UploadAvatar(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHENTICATED",
			"message": "認証が必要です",
		})
		return
	}
	if h.uploader == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "アップロード先が設定されていません",
		})
		return
	}

	fh, err := c.FormFile("profileImage")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "profileImage フィールドで画像を送信してください",
		})
		return
	}

	url, err := h.uploader.SaveImage(fh)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUnsupportedType):
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "JPEGまたはPNGの画像のみアップロードできます",
			})
		case errors.Is(err, storage.ErrFileTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "LIMIT_EXCEEDED",
				"message": "ファイルサイズが上限を超えています",
			})
		default:
			h.respondError(c, err)
		}
		return
	}

	acct, err := h.manager.SetAvatar(c.Request.Context(), claims.UserID, url)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Profile image updated successfully",
		"profileImage": acct.AvatarURL,
	})
}
