package model

import "time"

// Member is keyed by the federation licence number, which is never reused.
// Every attribute but the key may be unknown.
type Member struct {
	LicenceNo   string     `gorm:"primaryKey;size:32" json:"licence_no"`
	FirstName   *string    `gorm:"size:64" json:"first_name"`
	LastName    *string    `gorm:"size:64" json:"last_name"`
	PhotoURL    *string    `gorm:"size:512" json:"photo_url"`
	SeasonLabel *string    `gorm:"size:32" json:"season_label"`
	ValidUntil  *time.Time `gorm:"type:date" json:"valid_until"`
	ValidFlag   *bool      `json:"valid_flag"`
	SourceURL   *string    `gorm:"size:512" json:"source_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `gorm:"index" json:"updated_at"`

	// Declared on this side so the foreign key lands on entries.licence_no.
	Entries []Entry `gorm:"foreignKey:LicenceNo;references:LicenceNo" json:"-"`
}

// Session is one club day; Date is "2006-01-02" in the club timezone.
type Session struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Date      string    `gorm:"size:10;uniqueIndex;not null" json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry records one member attending one session. The session already
// encodes the day, so (session_id, licence_no) is the uniqueness key.
type Entry struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	SessionID int64     `gorm:"not null;uniqueIndex:uk_session_licence" json:"session_id"`
	LicenceNo string    `gorm:"size:32;not null;uniqueIndex:uk_session_licence;index" json:"licence_no"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	SourceURL string    `gorm:"size:512" json:"source_url"`

	Session *Session `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// DistinctLicences lists each referenced licence once, in first-seen order.
func DistinctLicences(entries []Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	var out []string
	for _, e := range entries {
		if _, ok := seen[e.LicenceNo]; ok {
			continue
		}
		seen[e.LicenceNo] = struct{}{}
		out = append(out, e.LicenceNo)
	}
	return out
}

// Operator is an allow-listed account allowed to use the backend.
type Operator struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"size:191;uniqueIndex;not null" json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
}

func (Member) TableName() string   { return "members" }
func (Session) TableName() string  { return "sessions" }
func (Entry) TableName() string    { return "entries" }
func (Operator) TableName() string { return "operators" }

// Tables lists the schema in dependency order for AutoMigrate.
func Tables() []any {
	return []any{&Member{}, &Session{}, &Entry{}, &Operator{}}
}
