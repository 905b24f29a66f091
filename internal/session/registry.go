package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	tokenKeyPrefix   = "session:token:"
	userIndexPrefix  = "sessions:user:"
	startedIndexKey  = "sessions:started"
	activeIndexKey   = "sessions:active"

	// maxTxAttempts は WATCH 競合時に楽観ロックをやり直す上限回数です。
	maxTxAttempts = 5
)

var (
	// ErrNotFound は現在有効なセッションが存在しない場合に返されます。
	ErrNotFound = errors.New("session not found")
	// ErrDuplicateToken は同一トークンのセッションが既に存在する場合に返されます。
	ErrDuplicateToken = errors.New("session token already exists")
)

// Counts はセッションの集計値です。3つの値は同一スナップショットから計算されます。
type Counts struct {
	Active  int64 `json:"activeSessions"`
	Last24h int64 `json:"last24Hours"`
	Total   int64 `json:"totalSessions"`
}

// Registry はセッションレコードを Redis に保存し、作成・照会・失効を担います。
//
// キー構成:
//   - session:<id>            レコード本体（JSON）
//   - session:token:<token>   トークン→ID の一意インデックス（SETNX で制約）
//   - sessions:user:<userId>  ユーザー別 ZSET（スコア=開始時刻）
//   - sessions:started        全セッション ZSET（スコア=開始時刻）
//   - sessions:active         有効セッション ZSET（スコア=有効期限）
type Registry struct {
	rdb *redis.Client

	// now はテストから差し替えられる時刻取得関数です。
	now func() time.Time
}

// NewRegistry は Registry を作成します。
func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{
		rdb: rdb,
		now: time.Now,
	}
}

// Create は新しいセッションを status=active で作成します。
// 既存セッションを上書きすることはなく、同一ユーザーの同時ログインは
// それぞれ独立したセッションになります（複数端末を想定）。
// 有効期限は作成時に now+ttl で固定され、以後の利用で延長されません。
func (r *Registry) Create(ctx context.Context, userID, token string, ttl time.Duration, meta Metadata) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}

	now := r.now().UTC()
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Token:      token,
		IPAddress:  meta.IPAddress,
		DeviceInfo: meta.DeviceInfo,
		StartTime:  now,
		ExpiresAt:  now.Add(ttl),
		Status:     StatusActive,
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}

	// SETNX がトークン一意性制約の本体（暗号学的に衝突はまず起きないが、
	// 制約はストア側で持つ）。
	reserved, err := r.rdb.SetNX(ctx, tokenKey(token), sess.ID, 0).Result()
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, ErrDuplicateToken
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), payload, 0)
	pipe.ZAdd(ctx, userIndexKey(userID), redis.Z{Score: float64(now.UnixMilli()), Member: sess.ID})
	pipe.ZAdd(ctx, startedIndexKey, redis.Z{Score: float64(now.UnixMilli()), Member: sess.ID})
	pipe.ZAdd(ctx, activeIndexKey, redis.Z{Score: float64(sess.ExpiresAt.UnixMilli()), Member: sess.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		_ = r.rdb.Del(ctx, tokenKey(token)).Err()
		return nil, err
	}
	return sess, nil
}

// GetByToken はトークンに対応するセッションを返します。
// 状態は現在時刻で正規化されます（期限切れは expired として観測される）。
func (r *Registry) GetByToken(ctx context.Context, token string) (*Session, error) {
	sess, err := r.getByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.Status = sess.EffectiveStatusAt(r.now())
	return sess, nil
}

// IsActive はトークンに対応するセッションが現在有効かを返します。状態は変更しません。
func (r *Registry) IsActive(ctx context.Context, token string) (bool, error) {
	sess, err := r.getByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return sess.IsActiveAt(r.now()), nil
}

// EndByToken はセッションを明示的に終了します（active -> ended）。
// 現在有効なレコードが存在しない場合は ErrNotFound を返すため、
// 同じトークンで2回呼ぶと2回目は必ず ErrNotFound になります。
// WATCH 競合時は上限回数までやり直すので、同時ログアウトの敗者も
// 競合エラーではなく ErrNotFound を観測します。
func (r *Registry) EndByToken(ctx context.Context, token string) (*Session, error) {
	id, err := r.rdb.Get(ctx, tokenKey(token)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var ended *Session
	end := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, sessionKey(id)).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return err
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return err
		}

		now := r.now().UTC()
		if !sess.IsActiveAt(now) {
			return ErrNotFound
		}

		sess.Status = StatusEnded
		sess.EndTime = &now

		payload, err := json.Marshal(&sess)
		if err != nil {
			return err
		}

		pipe := tx.TxPipeline()
		pipe.Set(ctx, sessionKey(id), payload, 0)
		pipe.ZRem(ctx, activeIndexKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		ended = &sess
		return nil
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = r.rdb.Watch(ctx, end, sessionKey(id))
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ended, nil
	}
	return nil, err
}

// ListActiveForUser はユーザーの現在有効なセッションを新しい順に返します。
func (r *Registry) ListActiveForUser(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := r.sessionsForUser(ctx, userID, 0, -1)
	if err != nil {
		return nil, err
	}

	now := r.now()
	active := make([]*Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.IsActiveAt(now) {
			active = append(active, sess)
		}
	}
	return active, nil
}

// HistoryForUser はユーザーのセッション履歴（状態を問わず）を新しい順に返します。
// limit が正の場合はその件数で打ち切ります。
func (r *Registry) HistoryForUser(ctx context.Context, userID string, limit int) ([]*Session, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	sessions, err := r.sessionsForUser(ctx, userID, 0, stop)
	if err != nil {
		return nil, err
	}

	now := r.now()
	for _, sess := range sessions {
		sess.Status = sess.EffectiveStatusAt(now)
	}
	return sessions, nil
}

// CountSnapshot は有効数・直近24時間の開始数・累計数を返します。
// 3つの値は MULTI/EXEC 内で同時に読み取るため、必ず同一時点の
// ストア状態を観測します（全件走査と常に一致する）。
func (r *Registry) CountSnapshot(ctx context.Context) (*Counts, error) {
	now := r.now().UTC()

	pipe := r.rdb.TxPipeline()
	activeCmd := pipe.ZCount(ctx, activeIndexKey,
		"("+strconv.FormatInt(now.UnixMilli(), 10), "+inf")
	last24Cmd := pipe.ZCount(ctx, startedIndexKey,
		strconv.FormatInt(now.Add(-24*time.Hour).UnixMilli(), 10), "+inf")
	totalCmd := pipe.ZCard(ctx, startedIndexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return &Counts{
		Active:  activeCmd.Val(),
		Last24h: last24Cmd.Val(),
		Total:   totalCmd.Val(),
	}, nil
}

// CountActive は現在有効なセッション数を返します。
func (r *Registry) CountActive(ctx context.Context) (int64, error) {
	counts, err := r.CountSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return counts.Active, nil
}

// CountLast24h は直近24時間に開始されたセッション数を返します。
func (r *Registry) CountLast24h(ctx context.Context) (int64, error) {
	counts, err := r.CountSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return counts.Last24h, nil
}

// CountTotal は累計セッション数を返します。
func (r *Registry) CountTotal(ctx context.Context) (int64, error) {
	counts, err := r.CountSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return counts.Total, nil
}

// PruneExpired は期限切れのまま残っている active レコードを expired に確定し、
// 有効インデックスから取り除きます。ストアの掃除用であり、有効性の判定は
// この処理に依存しません（述語が常に遅延評価するため）。
func (r *Registry) PruneExpired(ctx context.Context) (int, error) {
	now := r.now().UTC()
	ids, err := r.rdb.ZRangeByScore(ctx, activeIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
		if err != nil {
			if err == redis.Nil {
				_ = r.rdb.ZRem(ctx, activeIndexKey, id).Err()
				continue
			}
			return pruned, err
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return pruned, err
		}
		if sess.Status == StatusActive && !now.Before(sess.ExpiresAt) {
			sess.Status = StatusExpired
			payload, err := json.Marshal(&sess)
			if err != nil {
				return pruned, err
			}
			pipe := r.rdb.TxPipeline()
			pipe.Set(ctx, sessionKey(id), payload, 0)
			pipe.ZRem(ctx, activeIndexKey, id)
			if _, err := pipe.Exec(ctx); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}

func (r *Registry) getByToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	id, err := r.rdb.Get(ctx, tokenKey(token)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *Registry) sessionsForUser(ctx context.Context, userID string, start, stop int64) ([]*Session, error) {
	ids, err := r.rdb.ZRevRange(ctx, userIndexKey(userID), start, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	return sessions, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func tokenKey(token string) string {
	return tokenKeyPrefix + token
}

func userIndexKey(userID string) string {
	return userIndexPrefix + userID
}
