package service

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scan-licences/internal/model"
)

// EntryService is the attendance log. Entries are never updated.
type EntryService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewEntryService(db *gorm.DB) *EntryService {
	return &EntryService{db: db, now: time.Now}
}

// Insert records an attendance. A second entry for the same session and
// licence fails with model.ErrDuplicate, an unknown member with
// model.ErrMissingMember.
func (s *EntryService) Insert(ctx context.Context, sessionID int64, licenceNo, sourceURL string) (*model.Entry, error) {
	licenceNo = strings.ToUpper(strings.TrimSpace(licenceNo))
	if sessionID <= 0 || licenceNo == "" {
		return nil, classify("insert entry", model.ErrInvalidInput)
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	e := model.Entry{
		SessionID: sessionID,
		LicenceNo: licenceNo,
		SourceURL: sourceURL,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&e).Error; err != nil {
		return nil, classify("insert entry", err)
	}
	return &e, nil
}

// Delete removes an entry; deleting a missing entry is not an error.
func (s *EntryService) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return classify("delete entry", s.db.WithContext(ctx).Delete(&model.Entry{}, id).Error)
}

// ListBySession is the live view: newest first, with member names.
func (s *EntryService) ListBySession(ctx context.Context, sessionID int64) ([]model.EntryView, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var entries []model.Entry
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Order("id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, classify("list entries", err)
	}

	members, err := NewMemberService(s.db).ByLicences(ctx, model.DistinctLicences(entries))
	if err != nil {
		return nil, err
	}
	views := make([]model.EntryView, len(entries))
	for i, e := range entries {
		views[i].Entry = e
		if m, ok := members[e.LicenceNo]; ok {
			views[i].FirstName = model.Deref(m.FirstName)
			views[i].LastName = model.Deref(m.LastName)
			views[i].PhotoURL = model.Deref(m.PhotoURL)
			views[i].ValidFlag = m.ValidFlag
		}
	}
	return views, nil
}

// ForSession returns the entries of a session, oldest first.
func (s *EntryService) ForSession(ctx context.Context, sessionID int64) ([]model.Entry, error) {
	return s.find(ctx, "list session entries", s.db.Where("session_id = ?", sessionID))
}

// InRange returns entries with start <= created_at < end, oldest first.
func (s *EntryService) InRange(ctx context.Context, start, end time.Time) ([]model.Entry, error) {
	return s.find(ctx, "list entries in range", s.db.Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC()))
}

func (s *EntryService) All(ctx context.Context) ([]model.Entry, error) {
	return s.find(ctx, "list all entries", s.db)
}

func (s *EntryService) find(ctx context.Context, op string, q *gorm.DB) ([]model.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var entries []model.Entry
	if err := q.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&entries).Error; err != nil {
		return nil, classify(op, err)
	}
	return entries, nil
}

// StatsTop is how many licences Stats ranks.
const StatsTop = 10

// Stats counts entries per session day from the UTC date of since onwards,
// and ranks the StatsTop licences with the most entries created since since.
// Ties rank by licence number.
func (s *EntryService) Stats(ctx context.Context, since time.Time) (*model.Stats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	since = since.UTC()
	out := &model.Stats{Since: since, ByDay: []model.DayCount{}, Top: []model.LicenceCount{}}
	err := s.db.WithContext(ctx).Model(&model.Entry{}).
		Select("sessions.date AS date, COUNT(*) AS count").
		Joins("JOIN sessions ON sessions.id = entries.session_id").
		Where("sessions.date >= ?", since.Format("2006-01-02")).
		Group("sessions.date").
		Order("sessions.date ASC").
		Scan(&out.ByDay).Error
	if err != nil {
		return nil, classify("stats by day", err)
	}

	err = s.db.WithContext(ctx).Model(&model.Entry{}).
		Select("licence_no, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("licence_no").
		Order("COUNT(*) DESC").Order("licence_no ASC").
		Limit(StatsTop).
		Scan(&out.Top).Error
	if err != nil {
		return nil, classify("stats top licences", err)
	}

	lics := make([]string, len(out.Top))
	for i, t := range out.Top {
		lics[i] = t.LicenceNo
	}
	members, err := NewMemberService(s.db).ByLicences(ctx, lics)
	if err != nil {
		return nil, err
	}
	for i := range out.Top {
		m := members[out.Top[i].LicenceNo]
		out.Top[i].LastName = model.Deref(m.LastName)
		out.Top[i].FirstName = model.Deref(m.FirstName)
	}
	return out, nil
}
