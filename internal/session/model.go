// Package session はログインセッションの記録と失効管理を提供します。
//
// 署名付きトークンは「このサーバーが発行した証明」でしかなく、失効を知りません。
// アクセス可否の最終判断はここで管理するレコードとの論理積で行います。
package session

import "time"

// Status はセッションのライフサイクル状態を表します。
type Status string

const (
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusExpired Status = "expired"
)

// Metadata はセッション作成時に記録するリクエスト情報です。
// 監査・フォレンジック用途のみで、認可判断には使用しません。
type Metadata struct {
	IPAddress  string
	DeviceInfo string
}

// Session は1回のログインに対応するセッションレコードです。
type Session struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Token      string     `json:"token"`
	IPAddress  string     `json:"ipAddress,omitempty"`
	DeviceInfo string     `json:"deviceInfo,omitempty"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Status     Status     `json:"status"`
}

// IsActiveAt はセッションが時刻 now において有効かを判定します。
// status=active かつ終了時刻が未記録かつ有効期限前、の全てを満たす場合のみ真です。
// 「セッションは有効か」を問う箇所は全てこの述語を使用します。
func (s *Session) IsActiveAt(now time.Time) bool {
	return s.Status == StatusActive && s.EndTime == nil && now.Before(s.ExpiresAt)
}

// EffectiveStatusAt は時刻 now における観測上の状態を返します。
// 有効期限は遅延評価のため、保存上 active のままでも期限を過ぎていれば
// expired として扱います（書き込みは発生しません）。
func (s *Session) EffectiveStatusAt(now time.Time) Status {
	if s.Status == StatusActive && !now.Before(s.ExpiresAt) {
		return StatusExpired
	}
	return s.Status
}
