package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scan-licences/internal/model"
	"scan-licences/internal/season"
)

// SessionService manages club days. There is at most one session per date.
type SessionService struct {
	db  *gorm.DB
	cal *season.Calendar
	now func() time.Time
}

func NewSessionService(db *gorm.DB, cal *season.Calendar) *SessionService {
	return &SessionService{db: db, cal: cal, now: time.Now}
}

// OpenToday returns today's session, creating it if needed. Concurrent
// callers all get the same row.
func (s *SessionService) OpenToday(ctx context.Context) (*model.Session, error) {
	return s.Open(ctx, s.cal.Today(s.now()))
}

func (s *SessionService) Open(ctx context.Context, date string) (*model.Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sess := model.Session{Date: date}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "date"}}, DoNothing: true}).
		Create(&sess).Error
	if err != nil && !isDuplicate(err) {
		return nil, classify("open session", err)
	}

	var got model.Session
	if err := s.db.WithContext(ctx).Where("date = ?", date).First(&got).Error; err != nil {
		return nil, classify("read session", err)
	}
	return &got, nil
}

// Today returns nil when no session was opened today.
func (s *SessionService) Today(ctx context.Context) (*model.Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sess model.Session
	err := s.db.WithContext(ctx).Where("date = ?", s.cal.Today(s.now())).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("today session", err)
	}
	return &sess, nil
}

func (s *SessionService) Get(ctx context.Context, id int64) (*model.Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sess model.Session
	err := s.db.WithContext(ctx).First(&sess, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %d: %w", id, model.ErrInvalidInput)
	}
	if err != nil {
		return nil, classify("get session", err)
	}
	return &sess, nil
}

// List returns the latest sessions first.
func (s *SessionService) List(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 || limit > 366 {
		limit = 60
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sessions []model.Session
	if err := s.db.WithContext(ctx).Order("date DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, classify("list sessions", err)
	}
	return sessions, nil
}
