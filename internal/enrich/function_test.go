package enrich

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan-licences/internal/model"
	"scan-licences/internal/season"
	"scan-licences/internal/storage"
)

func newTestFunction(t *testing.T, bucket storage.Bucket) *Function {
	t.Helper()
	f := NewFunction(bucket, season.Default(), "", time.Second)
	f.hosts = append(f.hosts, "127.0.0.1")
	f.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestFunctionLookup(t *testing.T) {
	var referer string
	mux := http.NewServeMux()
	mux.HandleFunc("/F.aspx", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(licencePage))
	})
	mux.HandleFunc("/viewDocument.aspx", func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	root := t.TempDir()
	f := newTestFunction(t, storage.NewDirBucket(root, "https://cdn.example/photos"))

	pageURL := srv.URL + "/F.aspx?C=82936384"
	resp, err := f.Lookup(context.Background(), pageURL)
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, "82936384", model.Deref(resp.LicenceNo))
	assert.Equal(t, "BRANLE", model.Deref(resp.LastName))
	assert.Equal(t, "GREGORY", model.Deref(resp.FirstName))
	assert.Equal(t, "Saison 2024 - 2025", model.Deref(resp.SeasonLabel))
	require.NotNil(t, resp.ValidFlag)
	assert.True(t, *resp.ValidFlag)
	assert.Equal(t, "https://cdn.example/photos/members/82936384.png", model.Deref(resp.PhotoURL))
	assert.Equal(t, pageURL, referer)

	data, err := os.ReadFile(filepath.Join(root, "members", "82936384.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestFunctionLookupDataPhotoAndSeasonValidity(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("gif-bytes"))
	page := strings.NewReplacer(
		`<span id="lb_resultat">En cours de validité</span>`, "",
		`viewDocument.aspx?PHOTO=abc`, "data:image/gif;base64,"+img,
		`Saison 2024 - 2025`, `Saison 2023 - 2024`,
	).Replace(licencePage)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	root := t.TempDir()
	f := newTestFunction(t, storage.NewDirBucket(root, "/media/photos"))

	resp, err := f.Lookup(context.Background(), srv.URL+"/F.aspx?C=82936384")
	require.NoError(t, err)
	require.NotNil(t, resp.ValidFlag)
	assert.False(t, *resp.ValidFlag)
	assert.Equal(t, "/media/photos/members/82936384.gif", model.Deref(resp.PhotoURL))
}

func TestFunctionLookupPhotoFailureKeepsProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/F.aspx", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(licencePage))
	})
	mux.HandleFunc("/viewDocument.aspx", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFunction(t, storage.NewDirBucket(t.TempDir(), ""))
	resp, err := f.Lookup(context.Background(), srv.URL+"/F.aspx?C=82936384")
	require.NoError(t, err)
	assert.Equal(t, "82936384", model.Deref(resp.LicenceNo))
	assert.Nil(t, resp.PhotoURL)
}

func TestFunctionLookupRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	f := newTestFunction(t, nil)

	_, err := f.Lookup(context.Background(), "https://evil.example/F.aspx?C=1")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.Lookup(context.Background(), "ftp://itac.pro/F.aspx?C=1")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.Lookup(context.Background(), srv.URL+"/F.aspx?C=1")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
}
