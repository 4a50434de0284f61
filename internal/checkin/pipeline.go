package checkin

import (
	"context"
	"errors"
	"fmt"

	"scan-licences/internal/enrich"
	"scan-licences/internal/licence"
	"scan-licences/internal/logger"
	"scan-licences/internal/model"
)

// Result is what one submission produced. Err is nil for recorded and
// duplicate.
type Result struct {
	Outcome   Outcome
	LicenceNo string
	Profile   *enrich.Profile
	Entry     *model.Entry
	Err       error
}

// Offline reports whether the submission failed for lack of connectivity
// and should be retried later.
func (r Result) Offline() bool {
	return errors.Is(r.Err, model.ErrNetworkUnavailable)
}

// Message is a short line for the operator.
func (r Result) Message() string {
	who := r.LicenceNo
	if r.Profile != nil && r.Profile.LastName != "" {
		who = fmt.Sprintf("%s %s (%s)", r.Profile.LastName, r.Profile.FirstName, r.LicenceNo)
	}
	switch r.Outcome {
	case Recorded:
		return "recorded: " + who
	case Duplicate:
		return "already recorded today: " + who
	case Queued:
		return "offline, queued: " + who
	case InvalidInput:
		return "no licence number in scan, please rescan"
	case EnrichmentNotFound:
		return "profile not found for " + who
	case PermissionDenied:
		return "permission denied, check operator access"
	case FKMissingMember:
		return "member could not be created: " + who
	}
	if r.Err != nil {
		return "failed: " + r.Err.Error()
	}
	return "failed"
}

// Pipeline runs extract, enrich, upsert and record strictly in sequence.
type Pipeline struct {
	enricher Enricher
	members  Members
	recorder *Recorder
}

func NewPipeline(enricher Enricher, members Members, entries Entries) *Pipeline {
	return &Pipeline{enricher: enricher, members: members, recorder: NewRecorder(members, entries)}
}

// Submit records the attendance of the licence behind rawURL in sessionID.
func (p *Pipeline) Submit(ctx context.Context, sessionID int64, rawURL string) Result {
	lic, ok := licence.Extract(rawURL)
	if !ok || sessionID <= 0 {
		return Result{Outcome: InvalidInput, Err: fmt.Errorf("submit %q: %w", rawURL, model.ErrInvalidInput)}
	}
	res := Result{LicenceNo: lic}

	prof, err := p.enricher.Enrich(ctx, rawURL)
	if err != nil {
		res.Err = err
		res.Outcome = Failed
		if errors.Is(err, model.ErrNotFound) {
			res.Outcome = EnrichmentNotFound
		}
		logger.Warn("scan.enrich_failed", "licence_no", lic, "outcome", res.Outcome, "error", err)
		return res
	}
	res.Profile = prof
	res.LicenceNo = prof.LicenceNo

	if err := p.members.Upsert(ctx, prof.Member()); err != nil {
		res.Err = err
		res.Outcome = Failed
		if errors.Is(err, model.ErrPermissionDenied) {
			res.Outcome = PermissionDenied
		}
		logger.Warn("scan.upsert_failed", "licence_no", prof.LicenceNo, "outcome", res.Outcome, "error", err)
		return res
	}

	res.Outcome, res.Entry, res.Err = p.recorder.Record(ctx, sessionID, prof.LicenceNo, rawURL)
	if res.Err != nil {
		logger.Warn("scan.record_failed", "licence_no", prof.LicenceNo, "session_id", sessionID, "outcome", res.Outcome, "error", res.Err)
	} else {
		logger.Info("scan."+string(res.Outcome), "licence_no", prof.LicenceNo, "session_id", sessionID)
	}
	return res
}
