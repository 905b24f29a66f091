// Package auth は登録・ログイン・ログアウト・リクエスト認証を提供します。
//
// トークン検証（署名・期限）とセッションレジストリ照会（失効）は独立した
// 2つのチェックであり、保護エンドポイントでは必ず両方の論理積で判断します。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/saas-dashboard/internal/account"
	"github.com/yourusername/saas-dashboard/internal/password"
	"github.com/yourusername/saas-dashboard/internal/session"
	"github.com/yourusername/saas-dashboard/internal/token"
)

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しない場合に返されます。
	// アカウント列挙を防ぐため「ユーザー不在」と「パスワード不一致」を区別しません。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated はリクエスト認証に失敗した場合に返されます。
	// どのチェックで落ちたかは外部に漏らしません。
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Notifier はユーザー数が変化した際に統計再計算を依頼するためのインターフェースです。
type Notifier interface {
	NotifyUserRegistered(ctx context.Context) error
}

// Manager は認証フローを構成する各コンポーネントをまとめます。
type Manager struct {
	accounts *account.Store
	registry *session.Registry
	issuer   *token.Issuer
	notifier Notifier
	logger   *log.Logger
}

// NewManager は Manager を作成します。notifier は nil でも構いません。
func NewManager(accounts *account.Store, registry *session.Registry, issuer *token.Issuer, notifier Notifier, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		accounts: accounts,
		registry: registry,
		issuer:   issuer,
		notifier: notifier,
		logger:   logger,
	}
}

// Register は新規ユーザーを登録します。
// メールアドレスの一意性はストア側の制約で保証されます。
// 統計再計算の依頼は fire-and-forget で、失敗しても登録自体は成功します。
func (m *Manager) Register(ctx context.Context, name, email, plain string) (*account.Account, error) {
	digest, err := password.Hash(plain)
	if err != nil {
		return nil, err
	}

	acct, err := m.accounts.Create(ctx, name, email, digest)
	if err != nil {
		return nil, err
	}

	if m.notifier != nil {
		if err := m.notifier.NotifyUserRegistered(ctx); err != nil {
			m.logger.Printf("stats recompute notification failed: %v", err)
		}
	}
	return acct, nil
}

// LoginResult はログイン成功時の戻り値です。
type LoginResult struct {
	Token   string
	Session *session.Session
	Account *account.Account
}

// Login は資格情報を検証し、トークン発行とセッション作成を行います。
// セッション作成に失敗した場合は発行済みトークンを破棄して全体を失敗させます
// （レジストリの裏付けがないトークンを返さない）。
func (m *Manager) Login(ctx context.Context, email, plain string, meta session.Metadata) (*LoginResult, error) {
	acct, err := m.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			// 内部的には原因を残すが、応答は不一致と同一にする
			m.logger.Printf("login rejected: unknown account")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !password.Verify(plain, acct.PasswordHash) {
		m.logger.Printf("login rejected: password mismatch")
		return nil, ErrInvalidCredentials
	}

	signed, _, err := m.issuer.Issue(acct.ID, acct.Email)
	if err != nil {
		return nil, err
	}

	sess, err := m.registry.Create(ctx, acct.ID, signed, m.issuer.TTL(), meta)
	if err != nil {
		return nil, fmt.Errorf("session create failed: %w", err)
	}

	return &LoginResult{
		Token:   signed,
		Session: sess,
		Account: acct,
	}, nil
}

// Logout はトークンに対応するセッションを終了します。
// トークン自体が検証不能なら ErrUnauthenticated、
// 有効なセッションが残っていなければ session.ErrNotFound を返します。
func (m *Manager) Logout(ctx context.Context, tokenString string) (*session.Session, error) {
	if _, err := m.issuer.Verify(tokenString); err != nil {
		return nil, ErrUnauthenticated
	}
	return m.registry.EndByToken(ctx, tokenString)
}

// Authenticate はリクエストのトークンを検証します。
// 署名・期限チェックとレジストリの有効確認の両方を通過した場合のみ
// クレームを返します。失敗理由は区別せず ErrUnauthenticated に畳みます。
func (m *Manager) Authenticate(ctx context.Context, tokenString string) (*token.Claims, error) {
	claims, err := m.issuer.Verify(tokenString)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	active, err := m.registry.IsActive(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// ActiveSessions はユーザーの現在有効なセッション一覧を返します。
func (m *Manager) ActiveSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	return m.registry.ListActiveForUser(ctx, userID)
}
