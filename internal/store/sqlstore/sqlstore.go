package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suPer8Hu/research-chat/internal/store"
)

// Blob is one keyed document.
type Blob struct {
	Key       string `gorm:"column:blob_key;primaryKey;size:191"`
	Value     string `gorm:"type:longtext;not null"`
	UpdatedAt time.Time
}

func (Blob) TableName() string { return "chat_blobs" }

// Store persists blobs in a SQL table through gorm.
type Store struct {
	db *gorm.DB
}

// New migrates the blob table and returns a Store.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: db must not be nil")
	}
	if err := db.AutoMigrate(&Blob{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	b := Blob{Key: key, Value: string(data), UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blob_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&b).Error
	if err != nil {
		return fmt.Errorf("sqlstore: save %q: %w", key, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var b Blob
	if err := s.db.WithContext(ctx).Where("blob_key = ?", key).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlstore: load %q: %w", key, err)
	}
	return []byte(b.Value), nil
}
