package main

import (
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/saas-dashboard/internal/account"
	"github.com/yourusername/saas-dashboard/internal/config"
	"github.com/yourusername/saas-dashboard/internal/session"
	"github.com/yourusername/saas-dashboard/internal/stats"
)

// setupStats は統計スナップショットのストアとワーカーを組み立てます。
func setupStats(cfg *config.Config, rdb *redis.Client, accounts *account.Store, registry *session.Registry) (*stats.Manager, error) {
	store := stats.NewStore(rdb)
	manager, err := stats.NewManager(cfg, store, accounts, registry, log.Default())
	if err != nil {
		return nil, err
	}
	return manager, nil
}
