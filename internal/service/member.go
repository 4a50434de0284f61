package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scan-licences/internal/model"
)

// QueryTimeout bounds every database call made by the services.
var QueryTimeout = 8 * time.Second

// SetQueryTimeout replaces QueryTimeout; non-positive values are ignored.
func SetQueryTimeout(d time.Duration) {
	if d > 0 {
		QueryTimeout = d
	}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, QueryTimeout)
}

// Migrate creates or updates the backend schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.Tables()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type MemberService struct{ db *gorm.DB }

func NewMemberService(db *gorm.DB) *MemberService { return &MemberService{db: db} }

// Upsert inserts m or overwrites the stored row with every field m carries.
// Nil fields never erase what is already known.
func (s *MemberService) Upsert(ctx context.Context, m *model.Member) error {
	if strings.TrimSpace(m.LicenceNo) == "" {
		return fmt.Errorf("upsert member: %w", model.ErrInvalidInput)
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "licence_no"}}}
	if cols := presentColumns(m); len(cols) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(append(cols, "updated_at"))
	} else {
		onConflict.DoNothing = true
	}
	return classify("upsert member", s.db.WithContext(ctx).Clauses(onConflict).Omit(clause.Associations).Create(m).Error)
}

// EnsureStub creates an identifier-only member if none exists yet. An
// existing row is left untouched.
func (s *MemberService) EnsureStub(ctx context.Context, licenceNo string) error {
	return s.Upsert(ctx, &model.Member{LicenceNo: licenceNo})
}

func (s *MemberService) Get(ctx context.Context, licenceNo string) (*model.Member, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var m model.Member
	err := s.db.WithContext(ctx).Where("licence_no = ?", licenceNo).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("member %s: %w", licenceNo, model.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get member", err)
	}
	return &m, nil
}

// ByLicences fetches all listed members in a single query.
func (s *MemberService) ByLicences(ctx context.Context, licences []string) (map[string]model.Member, error) {
	out := make(map[string]model.Member, len(licences))
	if len(licences) == 0 {
		return out, nil
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var members []model.Member
	if err := s.db.WithContext(ctx).Where("licence_no IN ?", licences).Find(&members).Error; err != nil {
		return nil, classify("query members", err)
	}
	for _, m := range members {
		out[m.LicenceNo] = m
	}
	return out, nil
}

// List returns the most recently seen members first, optionally filtered by
// licence or name.
func (s *MemberService) List(ctx context.Context, search string, limit int) ([]model.Member, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	q := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit)
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToUpper(search) + "%"
		q = q.Where("UPPER(licence_no) LIKE ? OR UPPER(last_name) LIKE ? OR UPPER(first_name) LIKE ?", like, like, like)
	}
	var members []model.Member
	if err := q.Find(&members).Error; err != nil {
		return nil, classify("list members", err)
	}
	return members, nil
}

func presentColumns(m *model.Member) []string {
	var cols []string
	add := func(present bool, col string) {
		if present {
			cols = append(cols, col)
		}
	}
	add(m.FirstName != nil, "first_name")
	add(m.LastName != nil, "last_name")
	add(m.PhotoURL != nil, "photo_url")
	add(m.SeasonLabel != nil, "season_label")
	add(m.ValidUntil != nil, "valid_until")
	add(m.ValidFlag != nil, "valid_flag")
	add(m.SourceURL != nil, "source_url")
	return cols
}
