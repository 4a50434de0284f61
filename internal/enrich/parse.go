package enrich

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scan-licences/internal/licence"
)

// Element ids of the federation licence page.
const (
	idLicence = "lb_res_licence"
	idNom     = "lb_res_nom"
	idPrenom  = "lb_res_prenom"
	idSaison  = "lb_saison"
	idResult  = "lb_resultat"
	idPhoto   = "img_photo"

	nameWindow = 10
)

var (
	seasonLineRe = regexp.MustCompile(`(?i)^Saison\s+\d{4}\s*-\s*\d{4}$`)
	bareIDRe     = regexp.MustCompile(`^\d{6,12}$`)
)

// Page holds the raw fields read from a licence page.
type Page struct {
	LicenceNo   string
	LastName    string
	FirstName   string
	SeasonLabel string
	Result      string
	PhotoSrc    string
}

// ParsePage reads the licence page by element id. PhotoSrc is resolved
// against pageURL.
func ParsePage(r io.Reader, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	text := func(id string) string {
		return strings.TrimSpace(doc.Find("#" + id).First().Text())
	}
	p := &Page{
		LicenceNo:   text(idLicence),
		LastName:    text(idNom),
		FirstName:   text(idPrenom),
		SeasonLabel: text(idSaison),
		Result:      text(idResult),
	}
	if src, ok := doc.Find("img#" + idPhoto).First().Attr("src"); ok && strings.TrimSpace(src) != "" {
		p.PhotoSrc = resolve(pageURL, strings.TrimSpace(src))
	}
	return p, nil
}

// ParseText applies positional heuristics to the page rendered as text:
// the first bare 6-12 digit line is the licence, and the first two
// plausible names in the lines that follow are surname then first name.
// ValidFlag is only set when the page says so explicitly.
func ParseText(text, sourceURL string) *Profile {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	p := &Profile{SourceURL: sourceURL}
	at := -1
	for i, l := range lines {
		if p.SeasonLabel == "" && seasonLineRe.MatchString(l) {
			p.SeasonLabel = l
		}
		if !p.ValidFlag && StatesValid(l) {
			p.ValidFlag = true
		}
		if at < 0 && bareIDRe.MatchString(l) {
			at = i
		}
	}

	if at < 0 {
		p.LicenceNo, _ = licence.Extract(sourceURL)
		return p
	}
	p.LicenceNo = lines[at]
	for i := at + 1; i < len(lines) && i < at+nameWindow; i++ {
		if !PlausibleName(lines[i]) {
			continue
		}
		if p.LastName == "" {
			p.LastName = lines[i]
			continue
		}
		p.FirstName = lines[i]
		break
	}
	return p
}

func resolve(base, ref string) string {
	if strings.HasPrefix(ref, "data:") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
