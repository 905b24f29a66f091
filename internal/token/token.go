// Package token は署名付きベアラートークンの発行と検証を提供します。
//
// トークンは自己完結型（署名・発行時刻・有効期限を内包）ですが、検証の成功は
// 失効状態を保証しません。アクセス可否の判断では必ずセッションレジストリ側の
// 確認と組み合わせて使用します。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMissingSecret は署名鍵が未設定の場合に返されます。
	ErrMissingSecret = errors.New("signing secret is not configured")
	// ErrInvalidToken は署名不正・形式不正のトークンに対して返されます。
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired は有効期限切れのトークンに対して返されます。
	ErrTokenExpired = errors.New("token expired")
)

// Claims はトークンに埋め込むユーザー情報です。
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer はトークンの発行と検証を行います。
type Issuer struct {
	secret []byte
	ttl    time.Duration

	// now はテストから差し替えられる時刻取得関数です。
	now func() time.Time
}

// NewIssuer は Issuer を作成します。署名鍵が空の場合はエラーを返します。
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL はトークンの有効期間を返します。
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue はユーザー情報を含む署名付きトークンを発行します。
// 有効期限は発行時刻＋固定TTLで、以降延長されることはありません。
func (i *Issuer) Issue(userID, email string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			// 同一秒内の再ログインでも別トークンになるよう jti を必ず振る
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify は署名と有効期限を検証し、トークンに含まれるクレームを返します。
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
