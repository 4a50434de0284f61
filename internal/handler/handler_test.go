package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan-licences/internal/backup"
	"scan-licences/internal/checkin"
	"scan-licences/internal/config"
	"scan-licences/internal/enrich"
	"scan-licences/internal/export"
	"scan-licences/internal/middleware"
	"scan-licences/internal/model"
	"scan-licences/internal/season"
	"scan-licences/internal/service"
	"scan-licences/internal/storage"
)

type stubPipeline struct{ res checkin.Result }

func (s stubPipeline) Submit(ctx context.Context, sessionID int64, rawURL string) checkin.Result {
	return s.res
}

type testAPI struct {
	router *gin.Engine
	auth   *service.AuthService
}

func setupAPI(t *testing.T, scan checkin.Result) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, service.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cal := season.Default()
	authSvc := service.NewAuthService(db)
	sessions := service.NewSessionService(db, cal)
	entries := service.NewEntryService(db)
	members := service.NewMemberService(db)
	tokens := middleware.NewTokens("test-secret", 7*24*time.Hour)

	engine := export.NewEngine(entries, members, sessions, cal)
	job := backup.NewJob(entries, members, storage.NewDirBucket(t.TempDir(), ""), cal)

	router := NewRouter(Routes{
		Tokens:   tokens,
		Allowed:  authSvc.IsAllowed,
		Auth:     NewAuthHandler(authSvc, tokens),
		Sessions: NewSessionHandler(sessions, entries),
		Entries:  NewEntryHandler(entries),
		Members:  NewMemberHandler(members),
		Scan:     NewScanHandler(stubPipeline{res: scan}),
		Profile:  NewProfileHandler(enrich.NewFunction(nil, cal, "", time.Second)),
		Export:   NewExportHandler(engine, job),
	})
	return &testAPI{router: router, auth: authSvc}
}

func (a *testAPI) call(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) login(t *testing.T, email string, admin bool) string {
	t.Helper()
	_, err := a.auth.Put(context.Background(), email, "Op", "secret", admin)
	require.NoError(t, err)
	w := a.call(t, http.MethodPost, "/api/login", "", model.LoginRequest{Email: email, Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp model.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code
}

func TestLogin(t *testing.T) {
	api := setupAPI(t, checkin.Result{})
	api.login(t, "op@club.fr", false)

	w := api.call(t, http.MethodPost, "/api/login", "", model.LoginRequest{Email: "op@club.fr", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, model.CodePermissionDenied, errorCode(t, w))

	w = api.call(t, http.MethodPost, "/api/login", "", model.LoginRequest{Email: "stranger@club.fr", Password: "secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.call(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEntryLifecycle(t *testing.T) {
	api := setupAPI(t, checkin.Result{})
	op := api.login(t, "op@club.fr", false)
	boss := api.login(t, "boss@club.fr", true)

	w := api.call(t, http.MethodGet, "/api/sessions/today", op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", strings.TrimSpace(w.Body.String()))

	w = api.call(t, http.MethodPost, "/api/sessions/today", op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sess model.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))

	entry := model.EntryRequest{SessionID: sess.ID, LicenceNo: "abc123", SourceURL: "https://itac.pro/F.aspx?N=ABC123"}
	w = api.call(t, http.MethodPost, "/api/entries", op, entry)
	assert.Equal(t, http.StatusFailedDependency, w.Code)
	assert.Equal(t, model.CodeMissingMember, errorCode(t, w))

	w = api.call(t, http.MethodPost, "/api/members", op, map[string]any{"licence_no": "ABC123", "last_name": "DUPONT", "first_name": "JEAN"})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.call(t, http.MethodPost, "/api/entries", op, entry)
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "ABC123", created.LicenceNo)

	w = api.call(t, http.MethodPost, "/api/entries", op, entry)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, model.CodeDuplicate, errorCode(t, w))

	w = api.call(t, http.MethodGet, "/api/sessions/"+itoa(sess.ID)+"/entries", op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var views []model.EntryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "DUPONT", views[0].LastName)

	w = api.call(t, http.MethodGet, "/api/export?format=csv&session_id="+itoa(sess.ID), op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "presences_"+sess.Date+".csv")
	assert.Contains(t, w.Body.String(), "DUPONT;JEAN;ABC123;")

	path := "/api/entries/" + itoa(created.ID)
	assert.Equal(t, http.StatusForbidden, api.call(t, http.MethodDelete, path, op, nil).Code)
	assert.Equal(t, http.StatusOK, api.call(t, http.MethodDelete, path, boss, nil).Code)
	assert.Equal(t, http.StatusOK, api.call(t, http.MethodDelete, path, boss, nil).Code)
}

func TestMembersStubAndList(t *testing.T) {
	api := setupAPI(t, checkin.Result{})
	op := api.login(t, "op@club.fr", false)

	w := api.call(t, http.MethodPost, "/api/members/stub", op, model.StubRequest{LicenceNo: " zz9999 "})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.call(t, http.MethodPost, "/api/members", op, map[string]any{"licence_no": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.call(t, http.MethodGet, "/api/members?q=zz9", op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "ZZ9999", list[0].LicenceNo)
	assert.Nil(t, list[0].LastName)
}

func TestScanOutcomeStatus(t *testing.T) {
	dup := checkin.Result{Outcome: checkin.Duplicate, LicenceNo: "ABC123",
		Profile: &enrich.Profile{LicenceNo: "ABC123", LastName: "DUPONT", FirstName: "JEAN"}}
	api := setupAPI(t, dup)
	op := api.login(t, "op@club.fr", false)

	w := api.call(t, http.MethodPost, "/api/scan", op, model.ScanRequest{SessionID: 1, URL: "https://itac.pro/F.aspx?N=ABC123"})
	assert.Equal(t, http.StatusConflict, w.Code)
	var resp model.ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp.Outcome)
	require.NotNil(t, resp.Member)
	assert.Equal(t, "DUPONT", model.Deref(resp.Member.LastName))
	assert.Contains(t, resp.Message, "already recorded")
}

func TestScanFailureStatus(t *testing.T) {
	res := checkin.Result{Outcome: checkin.Failed, LicenceNo: "ABC123", Err: model.ErrNetworkUnavailable}
	api := setupAPI(t, res)
	op := api.login(t, "op@club.fr", false)

	w := api.call(t, http.MethodPost, "/api/scan", op, model.ScanRequest{SessionID: 1, URL: "ABC123"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestProfileFunctionRejectsForeignHost(t *testing.T) {
	api := setupAPI(t, checkin.Result{})
	op := api.login(t, "op@club.fr", false)

	w := api.call(t, http.MethodPost, "/functions/profile", op, model.ProfileRequest{URL: "https://example.com/F.aspx?N=1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_url")

	w = api.call(t, http.MethodPost, "/functions/profile", "", model.ProfileRequest{URL: "https://itac.pro/F.aspx?N=1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExportRejectsBadInput(t *testing.T) {
	api := setupAPI(t, checkin.Result{})
	op := api.login(t, "op@club.fr", true)

	assert.Equal(t, http.StatusBadRequest, api.call(t, http.MethodGet, "/api/export?format=docx", op, nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.call(t, http.MethodGet, "/api/export?season=2024-2030", op, nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.call(t, http.MethodGet, "/api/export?session_id=99", op, nil).Code)

	w := api.call(t, http.MethodGet, "/api/export?format=xlsx", op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "presences_tout.xlsx")

	w = api.call(t, http.MethodPost, "/api/admin/backup", op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "backups/")
}

func TestStatsWindow(t *testing.T) {
	api := setupAPI(t, checkin.Result{})
	op := api.login(t, "op@club.fr", false)

	w := api.call(t, http.MethodPost, "/api/sessions/today", op, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sess model.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))

	w = api.call(t, http.MethodPost, "/api/members", op, map[string]any{"licence_no": "ABC123", "last_name": "DUPONT"})
	require.Equal(t, http.StatusOK, w.Code)
	w = api.call(t, http.MethodPost, "/api/entries", op, model.EntryRequest{SessionID: sess.ID, LicenceNo: "ABC123"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.call(t, http.MethodGet, "/api/stats", op, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats model.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, []model.DayCount{{Date: sess.Date, Count: 1}}, stats.ByDay)
	require.Len(t, stats.Top, 1)
	assert.Equal(t, "DUPONT", stats.Top[0].LastName)
	assert.EqualValues(t, 1, stats.Top[0].Count)

	for _, days := range []string{"0", "367", "abc"} {
		w = api.call(t, http.MethodGet, "/api/stats?days="+days, op, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, days)
	}
	assert.Equal(t, http.StatusUnauthorized, api.call(t, http.MethodGet, "/api/stats", "", nil).Code)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
