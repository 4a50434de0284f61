// Package checkin runs a scanned URL through extraction, enrichment, member
// upsert and entry recording.
package checkin

import (
	"context"
	"errors"
	"fmt"

	"scan-licences/internal/enrich"
	"scan-licences/internal/model"
)

type Outcome string

const (
	Recorded           Outcome = "recorded"
	Duplicate          Outcome = "duplicate"
	FKMissingMember    Outcome = "fk_missing_member"
	PermissionDenied   Outcome = "permission_denied"
	Failed             Outcome = "failed"
	InvalidInput       Outcome = "invalid_input"
	EnrichmentNotFound Outcome = "enrichment_not_found"
	Queued             Outcome = "queued"
)

// Resolved reports whether the entry now exists.
func (o Outcome) Resolved() bool { return o == Recorded || o == Duplicate }

// Members is the member directory as the pipeline sees it.
type Members interface {
	Upsert(ctx context.Context, m *model.Member) error
	EnsureStub(ctx context.Context, licenceNo string) error
}

// Entries is the attendance log. Insert must report a second entry for the
// same session and licence as model.ErrDuplicate and an unknown member as
// model.ErrMissingMember.
type Entries interface {
	Insert(ctx context.Context, sessionID int64, licenceNo, sourceURL string) (*model.Entry, error)
}

type Enricher interface {
	Enrich(ctx context.Context, rawURL string) (*enrich.Profile, error)
}

// Recorder inserts entries and heals a missing member with a stub.
type Recorder struct {
	members Members
	entries Entries
}

func NewRecorder(members Members, entries Entries) *Recorder {
	return &Recorder{members: members, entries: entries}
}

// Record inserts one entry. A foreign key failure creates a stub member and
// retries exactly once. The returned error is nil for recorded and
// duplicate.
func (r *Recorder) Record(ctx context.Context, sessionID int64, licenceNo, sourceURL string) (Outcome, *model.Entry, error) {
	e, err := r.entries.Insert(ctx, sessionID, licenceNo, sourceURL)
	if !errors.Is(err, model.ErrMissingMember) {
		return outcomeOf(e, err)
	}

	if serr := r.members.EnsureStub(ctx, licenceNo); serr != nil {
		if errors.Is(serr, model.ErrPermissionDenied) {
			return PermissionDenied, nil, serr
		}
		return FKMissingMember, nil, fmt.Errorf("stub member %s: %w", licenceNo, serr)
	}
	e, err = r.entries.Insert(ctx, sessionID, licenceNo, sourceURL)
	if errors.Is(err, model.ErrMissingMember) {
		return FKMissingMember, nil, err
	}
	return outcomeOf(e, err)
}

func outcomeOf(e *model.Entry, err error) (Outcome, *model.Entry, error) {
	switch {
	case err == nil:
		return Recorded, e, nil
	case errors.Is(err, model.ErrDuplicate):
		return Duplicate, nil, nil
	case errors.Is(err, model.ErrMissingMember):
		return FKMissingMember, nil, err
	case errors.Is(err, model.ErrPermissionDenied):
		return PermissionDenied, nil, err
	default:
		return Failed, nil, err
	}
}
