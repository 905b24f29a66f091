package auth

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/saas-dashboard/internal/account"
	"github.com/yourusername/saas-dashboard/internal/session"
	"github.com/yourusername/saas-dashboard/internal/token"
)

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) NotifyUserRegistered(ctx context.Context) error {
	s.calls++
	return s.err
}

type testEnv struct {
	manager  *Manager
	accounts *account.Store
	registry *session.Registry
	notifier *stubNotifier
}

func newTestEnv(t *testing.T, ttl time.Duration) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	issuer, err := token.NewIssuer("test-secret", ttl)
	if err != nil {
		t.Fatalf("NewIssuer returned error: %v", err)
	}

	accounts := account.NewStore(rdb)
	registry := session.NewRegistry(rdb)
	notifier := &stubNotifier{}
	manager := NewManager(accounts, registry, issuer, notifier, log.Default())
	return &testEnv{
		manager:  manager,
		accounts: accounts,
		registry: registry,
		notifier: notifier,
	}
}

func TestRegisterHashesPassword(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	acct, err := env.manager.Register(ctx, "Alice", "alice@example.com", "s3cret-password")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if acct.PasswordHash == "s3cret-password" || acct.PasswordHash == "" {
		t.Fatal("stored digest must not equal the plaintext")
	}
	if env.notifier.calls != 1 {
		t.Fatalf("notifier called %d times, want 1", env.notifier.calls)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	if _, err := env.manager.Register(ctx, "Alice", "alice@example.com", "pw-one"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if _, err := env.manager.Register(ctx, "Impostor", "alice@example.com", "pw-two"); !errors.Is(err, account.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	count, err := env.accounts.Count(ctx)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("account count = %d, want 1", count)
	}
}

func TestRegisterSucceedsWhenNotifierFails(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	env.notifier.err = errors.New("queue unavailable")

	// 統計再計算の依頼失敗は登録応答を失敗させない
	if _, err := env.manager.Register(context.Background(), "Alice", "alice@example.com", "pw"); err != nil {
		t.Fatalf("Register must succeed despite notifier failure, got %v", err)
	}
}

func TestLoginCreatesExactlyOneSession(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	acct, err := env.manager.Register(ctx, "Alice", "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	result, err := env.manager.Login(ctx, "alice@example.com", "pw", session.Metadata{IPAddress: "198.51.100.1"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Token == "" {
		t.Fatal("Login must return a token")
	}
	if result.Session.Status != session.StatusActive {
		t.Fatalf("session status = %q, want active", result.Session.Status)
	}
	ttl := result.Session.ExpiresAt.Sub(result.Session.StartTime)
	if ttl != time.Hour {
		t.Fatalf("session TTL = %v, want 1h", ttl)
	}

	sessions, err := env.registry.ListActiveForUser(ctx, acct.ID)
	if err != nil {
		t.Fatalf("ListActiveForUser returned error: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("active sessions = %d, want 1", len(sessions))
	}
}

func TestLoginFailuresCreateNoSession(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	acct, err := env.manager.Register(ctx, "Alice", "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	// ユーザー不在とパスワード不一致は同じエラーに畳まれる
	if _, err := env.manager.Login(ctx, "nobody@example.com", "pw", session.Metadata{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.manager.Login(ctx, "alice@example.com", "wrong", session.Metadata{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}

	sessions, err := env.registry.ListActiveForUser(ctx, acct.ID)
	if err != nil {
		t.Fatalf("ListActiveForUser returned error: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("failed logins must not create sessions, got %d", len(sessions))
	}
	counts, err := env.registry.CountSnapshot(ctx)
	if err != nil {
		t.Fatalf("CountSnapshot returned error: %v", err)
	}
	if counts.Total != 0 {
		t.Fatalf("total sessions = %d, want 0", counts.Total)
	}
}

func TestAuthenticateRequiresLiveSession(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	if _, err := env.manager.Register(ctx, "Alice", "alice@example.com", "pw"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	result, err := env.manager.Login(ctx, "alice@example.com", "pw", session.Metadata{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	claims, err := env.manager.Authenticate(ctx, result.Token)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("claims.Email = %q", claims.Email)
	}

	if _, err := env.manager.Logout(ctx, result.Token); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	// 署名・期限は依然有効だが、レジストリ側の失効により拒否される
	if _, err := env.manager.Authenticate(ctx, result.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	env := newTestEnv(t, 5*time.Millisecond)
	ctx := context.Background()

	if _, err := env.manager.Register(ctx, "Alice", "alice@example.com", "pw"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	result, err := env.manager.Login(ctx, "alice@example.com", "pw", session.Metadata{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	// ログアウトしていなくても、期限経過後は遅延評価で無効になる
	if _, err := env.manager.Authenticate(ctx, result.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for expired token, got %v", err)
	}
	active, err := env.registry.IsActive(ctx, result.Token)
	if err != nil {
		t.Fatalf("IsActive returned error: %v", err)
	}
	if active {
		t.Fatal("expired session must not be active")
	}
}

func TestLogoutTwice(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	if _, err := env.manager.Register(ctx, "Alice", "alice@example.com", "pw"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	result, err := env.manager.Login(ctx, "alice@example.com", "pw", session.Metadata{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if _, err := env.manager.Logout(ctx, result.Token); err != nil {
		t.Fatalf("first Logout returned error: %v", err)
	}
	if _, err := env.manager.Logout(ctx, result.Token); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("second Logout: expected ErrNotFound, got %v", err)
	}
}

func TestLogoutUnverifiableToken(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	if _, err := env.manager.Logout(context.Background(), "garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
