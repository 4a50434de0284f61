// Package enrich turns a scanned licence URL into a member profile. The
// primary path asks the profile function; the fallback reads the page as
// plain text through a rendering proxy.
package enrich

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"scan-licences/internal/model"
)

// Profile is the outcome of an enrichment. Empty strings mean unknown.
type Profile struct {
	LicenceNo   string     `json:"licence_no"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	SeasonLabel string     `json:"season_label,omitempty"`
	ValidFlag   bool       `json:"valid_flag"`
	PhotoURL    string     `json:"photo_url,omitempty"`
	SourceURL   string     `json:"source_url"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
}

// Member maps the profile onto a member row. Unknown fields stay nil so an
// upsert keeps whatever was stored before.
func (p *Profile) Member() *model.Member {
	valid := p.ValidFlag
	return &model.Member{
		LicenceNo:   p.LicenceNo,
		FirstName:   model.Ptr(p.FirstName),
		LastName:    model.Ptr(p.LastName),
		PhotoURL:    model.Ptr(p.PhotoURL),
		SeasonLabel: model.Ptr(p.SeasonLabel),
		ValidUntil:  p.ValidUntil,
		ValidFlag:   &valid,
		SourceURL:   model.Ptr(p.SourceURL),
	}
}

var (
	nameRe    = regexp.MustCompile(`^[A-ZÀÂÄÇÉÈÊËÎÏÔÖÙÛÜŸ' -]+$`)
	badWordRe = regexp.MustCompile(`(?i)(SAISON|LICEN|\bNUM|\bN(°|O\b)|VALID|CONTR|FINAL|CARTE|FFTIR|PHOTO|FEDER|ASSUR|CLUB|DISCIPLINE|\bN[ÉE]E\b|\bNOM\b|PR[ÉE]NOM|DATE)`)

	enCoursRe = regexp.MustCompile(`\ben\s*cours\b`)
	validRe   = regexp.MustCompile(`\bvalid`)
)

// PlausibleName accepts 2 to 32 uppercase letters (French accents allowed),
// apostrophes, spaces and hyphens, and rejects page boilerplate.
func PlausibleName(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= 2 && n <= 32 && nameRe.MatchString(s) && !badWordRe.MatchString(s)
}

// StatesValid reports whether a page fragment reads "en cours de validité",
// ignoring case and accents.
func StatesValid(s string) bool {
	f := fold(s)
	return enCoursRe.MatchString(f) && validRe.MatchString(f)
}

func fold(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
