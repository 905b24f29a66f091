// Package password はパスワードのハッシュ化と検証を提供します。
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// hashCost は bcrypt のコストパラメータです。
	hashCost = 10
	// maxPasswordLen は bcrypt が受け付ける最大バイト数です（超過分は切り捨てられるため拒否する）。
	maxPasswordLen = 72
)

// ErrPasswordTooLong は72バイトを超えるパスワードに対して返されます。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hash は平文パスワードをソルト付きでハッシュ化します。
// ソルトは毎回ランダムに生成されるため、同じ入力でも結果は呼び出しごとに異なります。
func Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordLen {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), hashCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify は平文パスワードがハッシュと一致するかを検証します。
// 比較は bcrypt 内部で定数時間で行われます。
func Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
