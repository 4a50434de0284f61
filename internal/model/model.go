package model

import "time"

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token    string   `json:"token"`
	Operator Operator `json:"operator"`
}

type EntryRequest struct {
	SessionID int64  `json:"session_id" binding:"required"`
	LicenceNo string `json:"licence_no" binding:"required"`
	SourceURL string `json:"source_url"`
}

type StubRequest struct {
	LicenceNo string `json:"licence_no" binding:"required"`
}

type ScanRequest struct {
	SessionID int64  `json:"session_id" binding:"required"`
	URL       string `json:"url" binding:"required"`
}

type ScanResponse struct {
	Outcome   string  `json:"outcome"`
	LicenceNo string  `json:"licence_no,omitempty"`
	Member    *Member `json:"member,omitempty"`
	Entry     *Entry  `json:"entry,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// ProfileRequest and ProfileResponse are the remote enrichment function
// contract.
type ProfileRequest struct {
	URL string `json:"url"`
}

type ProfileResponse struct {
	OK          bool    `json:"ok"`
	LicenceNo   *string `json:"licence_no"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	SeasonLabel *string `json:"season_label,omitempty"`
	ValidFlag   *bool   `json:"valid_flag,omitempty"`
	PhotoURL    *string `json:"photo_url,omitempty"`
	SourceURL   string  `json:"source_url"`
	Error       string  `json:"error,omitempty"`
}

// EntryView is an entry joined with what is known of its member, for live
// lists.
type EntryView struct {
	Entry
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
	ValidFlag *bool  `json:"valid_flag"`
}

// DayCount is the number of entries of one session day.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type LicenceCount struct {
	LicenceNo string `json:"licence_no"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	Count     int64  `json:"count"`
}

// Stats summarises attendance since a cut-off: entries per day in ascending
// date order and the most frequent licences.
type Stats struct {
	Since time.Time      `json:"since"`
	ByDay []DayCount     `json:"by_day"`
	Top   []LicenceCount `json:"top"`
}

// ExportRow has the fixed export column order.
type ExportRow struct {
	LastName   string
	FirstName  string
	LicenceNo  string
	RecordedAt string
}

// Deref returns the pointed string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns nil for "" so that blanks never overwrite stored data.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
