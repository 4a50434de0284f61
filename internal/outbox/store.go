// Package outbox keeps scans made while the backend is unreachable and
// replays them, in order, once it is back.
package outbox

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Item is one queued scan. Seq gives the replay order.
type Item struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement" json:"seq"`
	ID         string    `gorm:"size:36;uniqueIndex;not null" json:"id"`
	SessionID  int64     `gorm:"not null" json:"session_id"`
	URL        string    `gorm:"type:text;not null" json:"url"`
	EnqueuedAt time.Time `gorm:"not null" json:"enqueued_at"`
	Attempts   int       `gorm:"not null;default:0" json:"attempts"`
}

func (Item) TableName() string { return "outbox_items" }

// Store persists the queue.
type Store interface {
	Append(ctx context.Context, it *Item) error
	// List returns every item by ascending Seq.
	List(ctx context.Context) ([]Item, error)
	Remove(ctx context.Context, id string) error
	// Bump increments the attempt counter and returns its new value.
	Bump(ctx context.Context, id string) (int, error)
	Len(ctx context.Context) (int, error)
}

// SQLStore keeps the queue in a gorm database, a local SQLite file on the
// kiosk.
type SQLStore struct{ db *gorm.DB }

func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&Item{}); err != nil {
		return nil, fmt.Errorf("migrate outbox: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Append(ctx context.Context, it *Item) error {
	if err := s.db.WithContext(ctx).Create(it).Error; err != nil {
		return fmt.Errorf("append outbox item: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return items, nil
}

func (s *SQLStore) Remove(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Item{}).Error; err != nil {
		return fmt.Errorf("remove outbox item %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) Bump(ctx context.Context, id string) (int, error) {
	var it Item
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Item{}).Where("id = ?", id).
			UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&it).Error
	})
	if err != nil {
		return 0, fmt.Errorf("bump outbox item %s: %w", id, err)
	}
	return it.Attempts, nil
}

func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Item{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return int(n), nil
}
