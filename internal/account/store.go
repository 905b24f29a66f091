package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	accountKeyPrefix   = "account:"
	emailKeyPrefix     = "account:email:"
	registeredIndexKey = "accounts:registered"

	// maxTxAttempts は WATCH 競合時に楽観ロックをやり直す上限回数です。
	maxTxAttempts = 5
)

var (
	// ErrDuplicateEmail は登録済みメールアドレスでの作成・変更要求に対して返されます。
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrNotFound は対象アカウントが存在しない場合に返されます。
	ErrNotFound = errors.New("account not found")
)

// Store はアカウントを Redis に保存します。
// メールアドレスの一意性は account:email:<email> キーへの SETNX で
// ストア側が保証します（アプリ側の存在チェックとの競合を防ぐ）。
type Store struct {
	rdb *redis.Client

	// now はテストから差し替えられる時刻取得関数です。
	now func() time.Time
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb: rdb,
		now: time.Now,
	}
}

// Create は新しいアカウントを作成します。
// メールアドレスが既に使用されている場合は ErrDuplicateEmail を返します。
// 照合は大文字小文字を区別した完全一致です。
func (s *Store) Create(ctx context.Context, name, email, passwordHash string) (*Account, error) {
	acct := &Account{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Skills:       []Skill{},
		RegisteredAt: s.now().UTC(),
	}

	payload, err := json.Marshal(acct)
	if err != nil {
		return nil, err
	}

	// SETNX が一意性制約の本体。先にインデックスを予約し、負けた側は重複扱い。
	reserved, err := s.rdb.SetNX(ctx, emailKey(email), acct.ID, 0).Result()
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, ErrDuplicateEmail
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, accountKey(acct.ID), payload, 0)
	pipe.ZAdd(ctx, registeredIndexKey, redis.Z{
		Score:  float64(acct.RegisteredAt.UnixMilli()),
		Member: acct.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		// 本体の書き込みに失敗した場合は予約したインデックスを戻す
		_ = s.rdb.Del(ctx, emailKey(email)).Err()
		return nil, err
	}
	return acct, nil
}

// GetByID はIDでアカウントを取得します。
func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// GetByEmail はメールアドレス（完全一致）でアカウントを取得します。
func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	id, err := s.rdb.Get(ctx, emailKey(email)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// Update はアカウントを読み出し、mutate を適用して保存します。
// メールアドレスが変更された場合はインデックスを張り替え、
// 変更先が使用済みなら ErrDuplicateEmail を返します。
// WATCH 競合時は上限回数まで自動でやり直します。
func (s *Store) Update(ctx context.Context, id string, mutate func(*Account) error) (*Account, error) {
	var updated *Account

	apply := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, accountKey(id)).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return err
		}
		var acct Account
		if err := json.Unmarshal(data, &acct); err != nil {
			return err
		}

		oldEmail := acct.Email
		if err := mutate(&acct); err != nil {
			return err
		}
		if acct.ID != id {
			return fmt.Errorf("account id must not change")
		}

		emailChanged := acct.Email != oldEmail
		if emailChanged {
			reserved, err := s.rdb.SetNX(ctx, emailKey(acct.Email), id, 0).Result()
			if err != nil {
				return err
			}
			if !reserved {
				return ErrDuplicateEmail
			}
		}

		payload, err := json.Marshal(&acct)
		if err != nil {
			if emailChanged {
				_ = s.rdb.Del(ctx, emailKey(acct.Email)).Err()
			}
			return err
		}

		pipe := tx.TxPipeline()
		pipe.Set(ctx, accountKey(id), payload, 0)
		if emailChanged {
			pipe.Del(ctx, emailKey(oldEmail))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			// 確定できなかった試行の予約を必ず戻す。残すと誰のものでもない
			// アドレスが ErrDuplicateEmail になり続ける
			if emailChanged {
				_ = s.rdb.Del(ctx, emailKey(acct.Email)).Err()
			}
			return err
		}
		updated = &acct
		return nil
	}

	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.rdb.Watch(ctx, apply, accountKey(id))
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, err
}

// Count は登録済みアカウント数を返します。
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, registeredIndexKey).Result()
}

// List は全アカウントを登録日時の昇順で返します。
// 順序はインデックスのスコア（登録時刻）がそのまま与えます。
func (s *Store) List(ctx context.Context) ([]*Account, error) {
	ids, err := s.rdb.ZRange(ctx, registeredIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Account{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = accountKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	accounts := make([]*Account, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var acct Account
		if err := json.Unmarshal([]byte(raw), &acct); err != nil {
			return nil, err
		}
		accounts = append(accounts, &acct)
	}
	return accounts, nil
}

func accountKey(id string) string {
	return accountKeyPrefix + id
}

func emailKey(email string) string {
	return emailKeyPrefix + email
}
