// Package account はユーザーアカウントの永続化とプロフィール操作を提供します。
package account

import "time"

// Skill はユーザーが登録するスキル項目です。
type Skill struct {
	Name              string `json:"skill"`
	YearsOfExperience int    `json:"yearsOfExperience"`
}

// Account はユーザーアカウントのレコードです。
// PasswordHash は永続化専用で、APIレスポンスには Public() を使用します。
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Skills       []Skill   `json:"skills"`
	AvatarURL    string    `json:"profileImage,omitempty"`
	RegisteredAt time.Time `json:"dateOfRegistration"`
}

// Public はパスワードハッシュを除いたレスポンス用の表現です。
type Public struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Skills       []Skill   `json:"skills"`
	AvatarURL    string    `json:"profileImage,omitempty"`
	RegisteredAt time.Time `json:"dateOfRegistration"`
}

// Public はレスポンスに載せて良いフィールドだけを返します。
func (a *Account) Public() Public {
	skills := a.Skills
	if skills == nil {
		skills = []Skill{}
	}
	return Public{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		Skills:       skills,
		AvatarURL:    a.AvatarURL,
		RegisteredAt: a.RegisteredAt,
	}
}
