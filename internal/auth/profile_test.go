package auth

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubUploader struct {
	url string
	err error
}

func (s *stubUploader) SaveImage(fh *multipart.FileHeader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

func TestProfileEndpoint(t *testing.T) {
	router := newTestRouter(t)
	tokenString := registerAndLogin(t, router, "alice@example.com")

	rec := doJSON(t, router, http.MethodGet, "/api/auth/profile", nil, map[string]string{
		"Authorization": "Bearer " + tokenString,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "passwordHash") {
		t.Fatal("profile response must not contain the password digest")
	}

	var profile struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("failed to decode profile: %v", err)
	}
	if profile.Email != "alice@example.com" {
		t.Fatalf("Email = %q", profile.Email)
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	router := newTestRouter(t)
	tokenString := registerAndLogin(t, router, "alice@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + tokenString}

	// 指定したフィールドだけが更新される
	rec := doJSON(t, router, http.MethodPut, "/api/auth/profile", gin.H{"name": "Alice Updated"}, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		User struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.User.Name != "Alice Updated" {
		t.Fatalf("Name = %q", resp.User.Name)
	}
	if resp.User.Email != "alice@example.com" {
		t.Fatalf("Email changed unexpectedly: %q", resp.User.Email)
	}
}

func TestUpdateProfilePasswordRotation(t *testing.T) {
	router := newTestRouter(t)
	tokenString := registerAndLogin(t, router, "alice@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + tokenString}

	rec := doJSON(t, router, http.MethodPut, "/api/auth/profile", gin.H{"password": "new-password"}, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// 旧パスワードでは認証できず、新パスワードでログインできる
	if rec := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"email": "alice@example.com", "password": "pw-123456",
	}, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("old password login status = %d, want 400", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
		"email": "alice@example.com", "password": "new-password",
	}, nil); rec.Code != http.StatusOK {
		t.Fatalf("new password login status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAddSkillEndpoint(t *testing.T) {
	router := newTestRouter(t)
	tokenString := registerAndLogin(t, router, "alice@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + tokenString}

	rec := doJSON(t, router, http.MethodPut, "/api/auth/profile/skills", gin.H{
		"skill": "Go", "yearsOfExperience": 3,
	}, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// 同名スキルの重複は拒否
	rec = doJSON(t, router, http.MethodPut, "/api/auth/profile/skills", gin.H{
		"skill": "Go", "yearsOfExperience": 5,
	}, authHeader)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "DUPLICATE_SKILL") {
		t.Fatalf("duplicate skill: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// 必須フィールド欠落は 400
	rec = doJSON(t, router, http.MethodPut, "/api/auth/profile/skills", gin.H{"skill": "Redis"}, authHeader)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing years: status = %d, want 400", rec.Code)
	}
}

func TestUploadAvatarEndpoint(t *testing.T) {
	router := newTestRouter(t)
	tokenString := registerAndLogin(t, router, "alice@example.com")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("profileImage", "avatar.png")
	if err != nil {
		t.Fatalf("CreateFormFile returned error: %v", err)
	}
	if _, err := part.Write([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}); err != nil {
		t.Fatalf("failed to write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/auth/profile/image", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "/uploads/stub.png") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	// プロフィールにも反映されている
	rec2 := doJSON(t, router, http.MethodGet, "/api/auth/profile", nil, map[string]string{
		"Authorization": "Bearer " + tokenString,
	})
	if !strings.Contains(rec2.Body.String(), "/uploads/stub.png") {
		t.Fatalf("profile not updated: %s", rec2.Body.String())
	}
}
