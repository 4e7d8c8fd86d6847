package kv

import (
	"context"
	"errors"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type entry struct {
	ID        string `gorm:"column:id;primaryKey;size:255"`
	Payload   string `gorm:"column:payload;not null"`
	ExpiresAt *int64 `gorm:"column:expires_at;index:idx_storefront_kv_expires_at"`
	UpdatedAt int64  `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (entry) TableName() string { return "storefront_kv" }

// SQLStore keeps values in the storefront_kv table. Expired rows are
// treated as absent and overwritten lazily.
type SQLStore struct {
	client    *db.Client
	namespace string
	now       func() time.Time
}

func NewSQLStore(client *db.Client, namespace string) (*SQLStore, error) {
	if client == nil {
		return nil, errors.New("db client required")
	}
	if namespace == "" {
		namespace = "sf"
	}
	return &SQLStore{client: client, namespace: namespace, now: time.Now}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row entry
	err := s.client.DB().WithContext(ctx).
		Where("id = ?", key).
		Where("(expires_at IS NULL OR expires_at > ?)", s.now().UnixMilli()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Payload), nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	row := s.row(key, value, ttl)
	return s.client.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var created bool
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND expires_at IS NOT NULL AND expires_at <= ?", key, s.now().UnixMilli()).
			Delete(&entry{}).Error; err != nil {
			return err
		}
		row := s.row(key, value, ttl)
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		return nil
	})
	return created, err
}

func (s *SQLStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.DB().WithContext(ctx).Where("id IN ?", keys).Delete(&entry{}).Error
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *SQLStore) Key(parts ...string) string {
	return buildKey(s.namespace, parts...)
}

func (s *SQLStore) row(key string, value []byte, ttl time.Duration) entry {
	row := entry{ID: key, Payload: string(value)}
	if ttl > 0 {
		exp := s.now().Add(ttl).UnixMilli()
		row.ExpiresAt = &exp
	}
	return row
}
