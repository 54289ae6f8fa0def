package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/attendance"
	"github.com/MarcoPoloResearchLab/idcards/internal/auth"
	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/database"
	"github.com/MarcoPoloResearchLab/idcards/internal/datasets"
	"github.com/MarcoPoloResearchLab/idcards/internal/export"
	"github.com/MarcoPoloResearchLab/idcards/internal/photos"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"github.com/MarcoPoloResearchLab/idcards/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSigningSecret = "test-signing-secret"

type testEnv struct {
	handler  http.Handler
	db       *gorm.DB
	users    *users.Service
	issuer   *auth.TokenIssuer
	realtime *RealtimeDispatcher
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	db, err := database.OpenSQLite(filepath.Join(dir, "idcards.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	clock := func() time.Time { return time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC) }

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: cards.NewSequenceProvider("user"),
		HashCost:   bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	templateStore, err := templates.NewStore(templates.StoreConfig{Database: db, IDProvider: cards.NewSequenceProvider("tpl"), Clock: clock})
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	datasetStore, err := datasets.NewStore(datasets.StoreConfig{Database: db, IDProvider: cards.NewSequenceProvider("ds"), Clock: clock})
	if err != nil {
		t.Fatalf("datasets: %v", err)
	}
	photoStore, err := photos.NewStore(photos.Config{
		Database:   db,
		Dir:        filepath.Join(dir, "photos"),
		BaseURL:    "/photos",
		IDProvider: cards.NewSequenceProvider("photo"),
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("photos: %v", err)
	}
	attendanceService, err := attendance.NewService(attendance.Config{
		Database:   db,
		IDProvider: cards.NewSequenceProvider("ev"),
		Clock:      clock,
		Location:   time.UTC,
	})
	if err != nil {
		t.Fatalf("attendance: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    "app_session",
	})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Sessions:   validator,
		Issuer:     issuer,
		Users:      userService,
		Templates:  templates.NewRegistry(templateStore),
		Datasets:   datasetStore,
		Photos:     photoStore,
		Attendance: attendanceService,
		Bridge:     export.NewBridge(export.BridgeConfig{Scale: 1}),
		Realtime:   realtime,
		ElementIDs: cards.NewSequenceProvider("el"),
		SessionIDs: cards.NewSequenceProvider("session"),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testEnv{handler: handler, db: db, users: userService, issuer: issuer, realtime: realtime}
}

// login registers an account with the role and returns its session cookie.
func (e testEnv) login(t *testing.T, email string, role users.Role) *http.Cookie {
	t.Helper()
	account, err := e.users.Register(context.Background(), users.Registration{Email: email, Password: "secret123", Role: string(role)})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	token, _, err := e.issuer.IssueSessionToken(context.Background(), auth.Principal{
		UserID: account.UserID,
		Email:  account.Email,
		Roles:  []string{string(account.Role)},
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &http.Cookie{Name: "app_session", Value: token}
}

func (e testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = http.NoBody
	}
	request := httptest.NewRequest(method, path, body)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func (e testEnv) doJSON(t *testing.T, method, path, payload string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, strings.NewReader(payload), "application/json", cookie)
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func errorCodeOf(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	decodeJSON(t, recorder, &payload)
	return payload.Error
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	pixels := image.NewRGBA(image.Rect(0, 0, 4, 4))
	pixels.Set(1, 1, color.RGBA{G: 0xff, A: 0xff})
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, pixels); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buffer.Bytes()
}

func multipartBody(t *testing.T, field, fileName string, payload []byte, values map[string]string) (io.Reader, string) {
	t.Helper()
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	for key, value := range values {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := writer.CreateFormFile(field, fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buffer, writer.FormDataContentType()
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected missing dependency error")
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	env := newTestEnv(t)

	registered := env.doJSON(t, http.MethodPost, "/auth/register", `{"email":"Faculty@Example.com","password":"secret123","displayName":"Dr. F","role":"faculty"}`, nil)
	if registered.Code != http.StatusCreated {
		t.Fatalf("unexpected register status %d: %s", registered.Code, registered.Body.String())
	}

	login := env.doJSON(t, http.MethodPost, "/auth/login", `{"email":"faculty@example.com","password":"secret123"}`, nil)
	if login.Code != http.StatusOK {
		t.Fatalf("unexpected login status %d: %s", login.Code, login.Body.String())
	}
	var cookie *http.Cookie
	for _, candidate := range login.Result().Cookies() {
		if candidate.Name == "app_session" {
			cookie = candidate
		}
	}
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", login.Result().Cookies())
	}

	me := env.do(t, http.MethodGet, "/auth/me", nil, "", cookie)
	if me.Code != http.StatusOK {
		t.Fatalf("unexpected me status %d", me.Code)
	}
	var account accountPayload
	decodeJSON(t, me, &account)
	if account.Email != "faculty@example.com" || account.Role != users.RoleFaculty {
		t.Fatalf("unexpected account %+v", account)
	}

	wrong := env.doJSON(t, http.MethodPost, "/auth/login", `{"email":"faculty@example.com","password":"nope"}`, nil)
	if wrong.Code != http.StatusUnauthorized || errorCodeOf(t, wrong) != "users.authenticate.invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d %s", wrong.Code, wrong.Body.String())
	}
	duplicate := env.doJSON(t, http.MethodPost, "/auth/register", `{"email":"faculty@example.com","password":"secret123"}`, nil)
	if duplicate.Code != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate email, got %d", duplicate.Code)
	}
}

func TestRoutesEnforceSessionAndRole(t *testing.T) {
	env := newTestEnv(t)
	student := env.login(t, "student@example.com", users.RoleStudent)

	testCases := []struct {
		name     string
		method   string
		path     string
		cookie   *http.Cookie
		expected int
	}{
		{name: "anonymous templates", method: http.MethodGet, path: "/templates", expected: http.StatusUnauthorized},
		{name: "forged cookie", method: http.MethodGet, path: "/templates", cookie: &http.Cookie{Name: "app_session", Value: "forged"}, expected: http.StatusUnauthorized},
		{name: "student reads templates", method: http.MethodGet, path: "/templates", cookie: student, expected: http.StatusOK},
		{name: "student datasets", method: http.MethodGet, path: "/datasets", cookie: student, expected: http.StatusForbidden},
		{name: "student editor", method: http.MethodPost, path: "/editor/sessions", cookie: student, expected: http.StatusForbidden},
		{name: "health", method: http.MethodGet, path: "/healthz", expected: http.StatusOK},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := env.do(t, testCase.method, testCase.path, nil, "", testCase.cookie)
			if recorder.Code != testCase.expected {
				t.Fatalf("expected %d, got %d: %s", testCase.expected, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestTemplateRoutes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin@example.com", users.RoleAdmin)

	list := env.do(t, http.MethodGet, "/templates", nil, "", admin)
	var listed struct {
		Templates []templates.Template `json:"templates"`
	}
	decodeJSON(t, list, &listed)
	if len(listed.Templates) == 0 || listed.Templates[0].ID != templates.DefaultTemplateID {
		t.Fatalf("expected built-ins first, got %+v", listed.Templates)
	}

	created := env.doJSON(t, http.MethodPost, "/templates", `{"name":"Custom","colors":{"primary":"#111111","neutral":"#eeeeee"}}`, admin)
	if created.Code != http.StatusCreated {
		t.Fatalf("unexpected create status %d: %s", created.Code, created.Body.String())
	}
	var stored templates.Template
	decodeJSON(t, created, &stored)
	if stored.ID != "tpl-1" || stored.OwnerID != "user-1" {
		t.Fatalf("unexpected stored template %+v", stored)
	}

	renamed := env.doJSON(t, http.MethodPatch, "/templates/tpl-1", `{"name":"Renamed"}`, admin)
	if renamed.Code != http.StatusOK || !strings.Contains(renamed.Body.String(), "Renamed") {
		t.Fatalf("unexpected patch response %d: %s", renamed.Code, renamed.Body.String())
	}

	readOnly := env.doJSON(t, http.MethodPatch, "/templates/"+templates.DefaultTemplateID, `{"name":"x"}`, admin)
	if readOnly.Code != http.StatusBadRequest || errorCodeOf(t, readOnly) != "templates.update.read_only" {
		t.Fatalf("expected read-only rejection, got %d %s", readOnly.Code, readOnly.Body.String())
	}

	sample := env.do(t, http.MethodGet, "/templates/"+templates.DefaultTemplateID+"/sample.csv?rows=2", nil, "", admin)
	if sample.Code != http.StatusOK || !strings.HasPrefix(sample.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected sample response %d %q", sample.Code, sample.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(sample.Body.String()), "\n")
	if len(lines) != 3 || !strings.Contains(lines[0], "full_name") {
		t.Fatalf("unexpected sample csv %q", sample.Body.String())
	}

	if deleted := env.do(t, http.MethodDelete, "/templates/tpl-1", nil, "", admin); deleted.Code != http.StatusNoContent {
		t.Fatalf("unexpected delete status %d", deleted.Code)
	}
	missing := env.do(t, http.MethodGet, "/templates/tpl-1", nil, "", admin)
	if missing.Code != http.StatusNotFound || errorCodeOf(t, missing) != "templates.get.not_found" {
		t.Fatalf("expected not found, got %d %s", missing.Code, missing.Body.String())
	}
}

func TestDatasetImportMatchAndGenerate(t *testing.T) {
	env := newTestEnv(t)
	faculty := env.login(t, "faculty@example.com", users.RoleFaculty)

	photoBody, photoType := multipartBody(t, "photos", "R7.png", testPNG(t), nil)
	uploaded := env.do(t, http.MethodPost, "/photos", photoBody, photoType, faculty)
	if uploaded.Code != http.StatusCreated {
		t.Fatalf("unexpected upload status %d: %s", uploaded.Code, uploaded.Body.String())
	}
	if served := env.do(t, http.MethodGet, "/photos/photo-1.png", nil, "", nil); served.Code != http.StatusOK {
		t.Fatalf("expected stored photo to be served, got %d", served.Code)
	}

	csvBody, csvType := multipartBody(t, "file", "class-a.csv", []byte("name,roll_no\nJane Doe,R7\nRick Roe,R8\n"), nil)
	imported := env.do(t, http.MethodPost, "/datasets", csvBody, csvType, faculty)
	if imported.Code != http.StatusCreated {
		t.Fatalf("unexpected import status %d: %s", imported.Code, imported.Body.String())
	}
	var summary datasets.Summary
	decodeJSON(t, imported, &summary)
	if summary.ID != "ds-1" || summary.Name != "class-a" || summary.Rows != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	loaded := env.do(t, http.MethodGet, "/datasets/ds-1", nil, "", faculty)
	var dataset datasets.Dataset
	decodeJSON(t, loaded, &dataset)
	if dataset.Rows[0]["full_name"] != "Jane Doe" || dataset.Rows[0]["qr"] != "R7" {
		t.Fatalf("expected normalized rows, got %v", dataset.Rows)
	}

	matched := env.doJSON(t, http.MethodPost, "/datasets/ds-1/match-photos", `{"policy":"exact"}`, faculty)
	var result datasets.MatchResult
	decodeJSON(t, matched, &result)
	if result.Matched != 1 || result.Rows[0]["photo"] != "/photos/photo-1.png" || len(result.Unmapped) != 0 {
		t.Fatalf("unexpected match result %+v", result)
	}
	if bad := env.doJSON(t, http.MethodPost, "/datasets/ds-1/match-photos", `{"policy":"fuzzy"}`, faculty); bad.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown policy rejection, got %d", bad.Code)
	}

	pdf := env.doJSON(t, http.MethodPost, "/datasets/ds-1/generate", `{"matchPhotos":true}`, faculty)
	if pdf.Code != http.StatusOK || pdf.Header().Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(pdf.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("unexpected pdf response %d %q", pdf.Code, pdf.Header().Get("Content-Type"))
	}

	single := env.doJSON(t, http.MethodPost, "/datasets/ds-1/generate", `{"format":"png","row":1,"side":"back"}`, faculty)
	if single.Code != http.StatusOK {
		t.Fatalf("unexpected png status %d: %s", single.Code, single.Body.String())
	}
	decoded, err := png.Decode(bytes.NewReader(single.Body.Bytes()))
	if err != nil {
		t.Fatalf("expected png body: %v", err)
	}
	if bounds := decoded.Bounds(); bounds.Dx() != cards.CanvasWidth || bounds.Dy() != cards.CanvasHeight {
		t.Fatalf("unexpected png size %v", bounds)
	}

	testCases := []struct {
		name    string
		payload string
		code    string
		status  int
	}{
		{name: "row out of range", payload: `{"format":"png","row":5}`, code: "invalid_row", status: http.StatusBadRequest},
		{name: "unknown format", payload: `{"format":"tiff"}`, code: "unknown_format", status: http.StatusBadRequest},
		{name: "unknown template", payload: `{"templateId":"nope"}`, code: "generate_failed", status: http.StatusNotFound},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := env.doJSON(t, http.MethodPost, "/datasets/ds-1/generate", testCase.payload, faculty)
			if recorder.Code != testCase.status || errorCodeOf(t, recorder) != testCase.code {
				t.Fatalf("expected %d %s, got %d %s", testCase.status, testCase.code, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestPhotoUploadReportsRejectedFiles(t *testing.T) {
	env := newTestEnv(t)
	faculty := env.login(t, "faculty@example.com", users.RoleFaculty)

	body, contentType := multipartBody(t, "photos", "notes.txt", []byte("plain text"), nil)
	recorder := env.do(t, http.MethodPost, "/photos", body, contentType, faculty)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected rejection, got %d", recorder.Code)
	}
	var payload struct {
		Failed []uploadFailurePayload `json:"failed"`
	}
	decodeJSON(t, recorder, &payload)
	if len(payload.Failed) != 1 || payload.Failed[0].Error != "photos.upload.unsupported_media" {
		t.Fatalf("unexpected failures %+v", payload.Failed)
	}
}

func TestAttendanceGateRule(t *testing.T) {
	env := newTestEnv(t)
	faculty := env.login(t, "faculty@example.com", users.RoleFaculty)

	refused := env.doJSON(t, http.MethodPost, "/attendance", `{"type":"classroom","personId":"S1","classCode":"CS101"}`, faculty)
	if refused.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", refused.Code)
	}
	var verdict struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	decodeJSON(t, refused, &verdict)
	if verdict.Allowed || verdict.Reason != attendance.GateRuleReason {
		t.Fatalf("unexpected verdict %+v", verdict)
	}

	if gate := env.doJSON(t, http.MethodPost, "/attendance", `{"type":"gate","personId":"S1"}`, faculty); gate.Code != http.StatusCreated {
		t.Fatalf("unexpected gate status %d: %s", gate.Code, gate.Body.String())
	}
	allowed := env.doJSON(t, http.MethodPost, "/attendance", `{"type":"classroom","personId":"S1","classCode":"CS101"}`, faculty)
	var accepted struct {
		Allowed bool             `json:"allowed"`
		Event   attendance.Event `json:"event"`
	}
	decodeJSON(t, allowed, &accepted)
	if allowed.Code != http.StatusCreated || !accepted.Allowed || accepted.Event.FacultyID != "user-1" {
		t.Fatalf("unexpected classroom response %d %+v", allowed.Code, accepted)
	}

	if invalid := env.doJSON(t, http.MethodPost, "/attendance", `{"type":"library","personId":"S1"}`, faculty); invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid event rejection, got %d", invalid.Code)
	}

	list := env.do(t, http.MethodGet, "/attendance", nil, "", faculty)
	var events struct {
		Events []attendance.Event `json:"events"`
	}
	decodeJSON(t, list, &events)
	if len(events.Events) != 2 {
		t.Fatalf("expected two recorded events, got %d", len(events.Events))
	}
}
