package stats

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/saas-dashboard/internal/account"
	"github.com/yourusername/saas-dashboard/internal/config"
	"github.com/yourusername/saas-dashboard/internal/session"
)

const (
	taskTypeRecompute = "stats:recompute"

	// initialMockRevenue は収益データが未接続の間に使用する初期値です。
	initialMockRevenue = 4567.89
)

// Manager は統計の再計算タスクの投入と実行を担います。
type Manager struct {
	cfg      *config.Config
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    *Store
	accounts *account.Store
	registry *session.Registry
	logger   *log.Logger
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, store *Store, accounts *account.Store, registry *session.Registry, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if accounts == nil {
		return nil, errors.New("accounts is nil")
	}
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"stats": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:      cfg,
		client:   client,
		server:   server,
		mux:      mux,
		store:    store,
		accounts: accounts,
		registry: registry,
		logger:   logger,
	}
	mux.HandleFunc(taskTypeRecompute, manager.handleRecomputeTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// NotifyUserRegistered はユーザー登録後に再計算タスクを投入します。
func (m *Manager) NotifyUserRegistered(ctx context.Context) error {
	task := asynq.NewTask(taskTypeRecompute, nil, asynq.Queue("stats"))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1)); err != nil {
		return err
	}
	return nil
}

// Recompute は統計スナップショットを最新化します。
// ユーザー数を再集計し、収益が未設定なら初期値を入れます。あわせて
// 期限切れセッションの掃除も行います（掃除の失敗は記録のみで、
// 統計の更新は継続します）。
func (m *Manager) Recompute(ctx context.Context) error {
	snapshot, err := m.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats snapshot: %w", err)
	}

	count, err := m.accounts.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count accounts: %w", err)
	}
	snapshot.TotalUsers = count
	if snapshot.TotalRevenue == 0 {
		snapshot.TotalRevenue = initialMockRevenue
	}

	if err := m.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save stats snapshot: %w", err)
	}

	if pruned, err := m.registry.PruneExpired(ctx); err != nil {
		if m.logger != nil {
			m.logger.Printf("failed to prune expired sessions: %v", err)
		}
	} else if pruned > 0 && m.logger != nil {
		m.logger.Printf("pruned %d expired sessions", pruned)
	}
	return nil
}

// CurrentSnapshot は最新のスナップショットを返します。
// 未初期化の値があればその場で補完して保存します（初回アクセス対策）。
func (m *Manager) CurrentSnapshot(ctx context.Context) (*Snapshot, error) {
	snapshot, err := m.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	dirty := false
	if snapshot.TotalUsers == 0 {
		count, err := m.accounts.Count(ctx)
		if err != nil {
			return nil, err
		}
		snapshot.TotalUsers = count
		dirty = true
	}
	if snapshot.TotalRevenue == 0 {
		snapshot.TotalRevenue = initialMockRevenue
		dirty = true
	}
	if dirty {
		if err := m.store.Save(ctx, snapshot); err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}

func (m *Manager) handleRecomputeTask(ctx context.Context, task *asynq.Task) error {
	return m.Recompute(ctx)
}
