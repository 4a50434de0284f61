package enrich

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"scan-licences/internal/licence"
	"scan-licences/internal/logger"
	"scan-licences/internal/model"
	"scan-licences/internal/season"
	"scan-licences/internal/storage"
)

const (
	DefaultUserAgent = "Mozilla/5.0"

	maxPageBytes  = 2 << 20
	maxPhotoBytes = 5 << 20
)

var dataURLRe = regexp.MustCompile(`(?is)^data:(image/[^;]+);base64,(.+)$`)

// FetchError is a non-2xx answer from the licence site.
type FetchError struct{ Status int }

func (e *FetchError) Error() string { return fmt.Sprintf("fetch page: status %d", e.Status) }

// Function is the server side of the primary path: it fetches the licence
// page, reads it by element id and copies the photo into the photo bucket.
type Function struct {
	client    *http.Client
	photos    storage.Bucket
	cal       *season.Calendar
	userAgent string
	hosts     []string
	now       func() time.Time
}

// NewFunction builds the profile function. photos may be nil, in which case
// photos are not stored.
func NewFunction(photos storage.Bucket, cal *season.Calendar, userAgent string, timeout time.Duration) *Function {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Function{
		client:    &http.Client{Timeout: timeout},
		photos:    photos,
		cal:       cal,
		userAgent: userAgent,
		hosts:     []string{"itac.pro", "www.itac.pro"},
		now:       time.Now,
	}
}

// Lookup answers the profile function contract for one licence page URL.
// Only itac.pro URLs are accepted.
func (f *Function) Lookup(ctx context.Context, rawURL string) (*model.ProfileResponse, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !f.allowed(u.Hostname()) {
		return nil, fmt.Errorf("lookup %q: %w", rawURL, model.ErrInvalidInput)
	}
	pageURL := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w (%v)", model.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Status: resp.StatusCode}
	}

	page, err := ParsePage(io.LimitReader(resp.Body, maxPageBytes), pageURL)
	if err != nil {
		return nil, err
	}

	out := &model.ProfileResponse{
		OK:          true,
		SourceURL:   pageURL,
		LicenceNo:   model.Ptr(page.LicenceNo),
		FirstName:   model.Ptr(page.FirstName),
		LastName:    model.Ptr(page.LastName),
		SeasonLabel: model.Ptr(page.SeasonLabel),
	}
	var valid bool
	if page.Result != "" {
		valid = StatesValid(page.Result)
	} else {
		valid = f.cal.ValidAt(page.SeasonLabel, f.now())
	}
	out.ValidFlag = &valid

	if page.LicenceNo != "" && page.PhotoSrc != "" && f.photos != nil {
		photoURL, err := f.storePhoto(ctx, page.PhotoSrc, pageURL, page.LicenceNo)
		if err != nil {
			logger.Warn("profile.photo_failed", "licence_no", page.LicenceNo, "error", err)
		} else {
			out.PhotoURL = &photoURL
		}
	}
	return out, nil
}

func (f *Function) storePhoto(ctx context.Context, src, pageURL, licenceNo string) (string, error) {
	data, ct, err := f.fetchPhoto(ctx, src, pageURL)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty photo")
	}
	key := storage.PhotoKey(licence.Sanitize(licenceNo), ct)
	if err := f.photos.Put(ctx, key, data, ct); err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	return f.photos.PublicURL(key), nil
}

func (f *Function) fetchPhoto(ctx context.Context, src, pageURL string) ([]byte, string, error) {
	if strings.HasPrefix(src, "data:") {
		m := dataURLRe.FindStringSubmatch(src)
		if m == nil {
			return nil, "", fmt.Errorf("bad data url")
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(m[2]))
		if err != nil {
			return nil, "", fmt.Errorf("decode data url: %w", err)
		}
		return data, m[1], nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build photo request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Referer", pageURL)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch photo: status %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, maxPhotoBytes)); err != nil {
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/jpeg"
	}
	return buf.Bytes(), ct, nil
}

func (f *Function) allowed(host string) bool {
	host = strings.ToLower(host)
	for _, h := range f.hosts {
		if host == h {
			return true
		}
	}
	return false
}
