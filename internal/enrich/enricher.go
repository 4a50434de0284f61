package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scan-licences/internal/licence"
	"scan-licences/internal/logger"
	"scan-licences/internal/model"
	"scan-licences/internal/season"
)

// Primary answers the profile function contract. Both FunctionClient and
// Function implement it.
type Primary interface {
	Lookup(ctx context.Context, rawURL string) (*model.ProfileResponse, error)
}

// Fallback returns the licence page as plain text.
type Fallback interface {
	Text(ctx context.Context, rawURL string) (string, error)
}

type Enricher struct {
	primary        Primary
	fallback       Fallback
	cal            *season.Calendar
	primaryTimeout time.Duration
	now            func() time.Time
}

// New builds an enricher. Either path may be nil.
func New(primary Primary, fallback Fallback, cal *season.Calendar, primaryTimeout time.Duration) *Enricher {
	if cal == nil {
		cal = season.Default()
	}
	return &Enricher{
		primary:        primary,
		fallback:       fallback,
		cal:            cal,
		primaryTimeout: primaryTimeout,
		now:            time.Now,
	}
}

// Enrich resolves rawURL into a profile. The primary path runs under its own
// timeout; any failure there, or names that do not look like names, bring
// in the text fallback. It fails with model.ErrNotFound when no licence
// number can be found and with model.ErrNetworkUnavailable when neither
// path could be reached.
func (e *Enricher) Enrich(ctx context.Context, rawURL string) (*Profile, error) {
	resp, perr := e.lookup(ctx, rawURL)
	if perr == nil {
		p := e.fromFunction(resp, rawURL)
		if !PlausibleName(p.FirstName) || !PlausibleName(p.LastName) {
			p.FirstName, p.LastName = "", ""
			if fb, err := e.viaText(ctx, rawURL); err == nil {
				merge(p, fb)
			}
		}
		if p.LicenceNo == "" {
			p.LicenceNo, _ = licence.Extract(rawURL)
		}
		if p.LicenceNo == "" {
			return nil, fmt.Errorf("enrich %s: %w", rawURL, model.ErrNotFound)
		}
		return p, nil
	}
	logger.Debug("enrich.primary_failed", "url", rawURL, "error", perr)

	p, ferr := e.viaText(ctx, rawURL)
	if ferr != nil {
		if isNetwork(ferr) && (isNetwork(perr) || e.primary == nil) {
			return nil, fmt.Errorf("enrich %s: %w", rawURL, model.ErrNetworkUnavailable)
		}
		return nil, fmt.Errorf("enrich %s: %w", rawURL, model.ErrNotFound)
	}
	if p.LicenceNo == "" {
		return nil, fmt.Errorf("enrich %s: %w", rawURL, model.ErrNotFound)
	}
	return p, nil
}

func (e *Enricher) lookup(ctx context.Context, rawURL string) (*model.ProfileResponse, error) {
	if e.primary == nil {
		return nil, fmt.Errorf("no profile function: %w", model.ErrNotFound)
	}
	if e.primaryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.primaryTimeout)
		defer cancel()
	}
	resp, err := e.primary.Lookup(ctx, rawURL)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("profile function: %w", ctx.Err())
	}
	return resp, err
}

func (e *Enricher) fromFunction(resp *model.ProfileResponse, rawURL string) *Profile {
	p := &Profile{
		LicenceNo:   strings.ToUpper(strings.TrimSpace(model.Deref(resp.LicenceNo))),
		FirstName:   strings.TrimSpace(model.Deref(resp.FirstName)),
		LastName:    strings.TrimSpace(model.Deref(resp.LastName)),
		SeasonLabel: strings.TrimSpace(model.Deref(resp.SeasonLabel)),
		PhotoURL:    model.Deref(resp.PhotoURL),
		SourceURL:   rawURL,
	}
	explicit := resp.ValidFlag != nil && *resp.ValidFlag
	e.settle(p, explicit)
	return p
}

func (e *Enricher) viaText(ctx context.Context, rawURL string) (*Profile, error) {
	if e.fallback == nil {
		return nil, fmt.Errorf("no text fallback: %w", model.ErrNotFound)
	}
	text, err := e.fallback.Text(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	p := ParseText(text, rawURL)
	p.LicenceNo = strings.ToUpper(p.LicenceNo)
	e.settle(p, p.ValidFlag)
	return p, nil
}

// settle derives valid_until from the season label. An explicit validity
// statement wins; otherwise validity follows the season end.
func (e *Enricher) settle(p *Profile, explicit bool) {
	if until, ok := e.cal.ValidUntil(p.SeasonLabel); ok {
		p.ValidUntil = &until
	}
	p.ValidFlag = explicit || e.cal.ValidAt(p.SeasonLabel, e.now())
}

// merge fills the gaps of p from the text fallback.
func merge(p, fb *Profile) {
	if p.FirstName == "" {
		p.FirstName = fb.FirstName
	}
	if p.LastName == "" {
		p.LastName = fb.LastName
	}
	if p.SeasonLabel == "" {
		p.SeasonLabel = fb.SeasonLabel
	}
	if p.ValidUntil == nil {
		p.ValidUntil = fb.ValidUntil
	}
	if !p.ValidFlag && fb.ValidFlag {
		p.ValidFlag = true
	}
	if p.LicenceNo == "" {
		p.LicenceNo = fb.LicenceNo
	}
}
