// Package stats は利用統計のスナップショット管理とバックグラウンド再計算を提供します。
package stats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "stats:snapshot"

// Snapshot は集計済みの統計値です。ドキュメントは常に1つだけ存在します。
type Snapshot struct {
	TotalUsers   int64     `json:"totalUsers"`
	TotalRevenue float64   `json:"totalRevenue"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// Store は統計スナップショットを Redis に保存します。
type Store struct {
	rdb *redis.Client
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb: rdb,
	}
}

// Get はスナップショットを取得します。未保存の場合はゼロ値を返します。
func (s *Store) Get(ctx context.Context) (*Snapshot, error) {
	data, err := s.rdb.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return &Snapshot{}, nil
		}
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Save はスナップショットを保存します。更新時刻はここで記録します。
func (s *Store) Save(ctx context.Context, snapshot *Snapshot) error {
	snapshot.LastUpdated = time.Now().UTC()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, snapshotKey, payload, 0).Err()
}
