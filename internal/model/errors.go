package model

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrDuplicate          = errors.New("already checked in for this session")
	ErrNotFound           = errors.New("profile not found")
	ErrMissingMember      = errors.New("member does not exist")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrStorage            = errors.New("storage failure")
)

// Error codes shared by the HTTP API and its clients.
const (
	CodeInvalidInput       = "invalid_input"
	CodeNetworkUnavailable = "network_unavailable"
	CodeDuplicate          = "duplicate_submission"
	CodeNotFound           = "enrichment_not_found"
	CodeMissingMember      = "fk_missing_member"
	CodePermissionDenied   = "permission_denied"
	CodeStorage            = "storage_failure"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidInput, CodeInvalidInput},
	{ErrNetworkUnavailable, CodeNetworkUnavailable},
	{ErrDuplicate, CodeDuplicate},
	{ErrNotFound, CodeNotFound},
	{ErrMissingMember, CodeMissingMember},
	{ErrPermissionDenied, CodePermissionDenied},
}

// Code classifies err; anything unrecognised is a storage failure.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeStorage
}

// FromCode is the inverse of Code.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return ErrStorage
}
