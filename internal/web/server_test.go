package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/constituents/internal/auth"
	"github.com/JonMunkholm/constituents/internal/config"
	"github.com/JonMunkholm/constituents/internal/core"
)

const testSecret = "0123456789abcdef-test"

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   *core.Store
	limiter *core.BatchLimiter
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg, err := config.LoadFrom(func(key string) (string, bool) {
		if key == "SESSION_SECRET" {
			return testSecret, true
		}
		return "", false
	})
	require.NoError(t, err)
	cfg.Rate.Enabled = false
	cfg.Upload.MaxWaitTime = 20 * time.Millisecond

	store := core.NewStore(core.WithClock(func() time.Time { return testNow }))
	pipeline, err := core.NewPipeline(store, core.WithChunkSize(cfg.Upload.ChunkSize))
	require.NoError(t, err)
	limiter := core.NewBatchLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)

	srv := NewServer(cfg, Deps{
		Store:    store,
		Pipeline: pipeline,
		Limiter:  limiter,
		Users:    auth.NewUsers(bcrypt.MinCost),
		Tokens:   auth.NewTokens(cfg.Security.SessionSecret, cfg.Security.SessionTTL),
	})
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, handler: srv.Handler(), store: store, limiter: limiter}
}

// login registers a fresh account and keeps its token for later requests.
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/register", "application/json",
		strings.NewReader(`{"username":"alice","password":"hunter22"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	e.token = body.Token
}

func (e *testEnv) do(t *testing.T, method, target, contentType string, body *strings.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	return e.send(req, contentType)
}

func (e *testEnv) send(req *http.Request, contentType string) *httptest.ResponseRecorder {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func multipartCSV(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["records"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/check-auth", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isAuthenticated":false}`, rec.Body.String())

	env.login(t)

	rec = env.do(t, http.MethodGet, "/api/check-auth", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var check struct {
		IsAuthenticated bool     `json:"isAuthenticated"`
		User            userView `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.True(t, check.IsAuthenticated)
	assert.Equal(t, "alice", check.User.Username)

	rec = env.do(t, http.MethodGet, "/api/profile", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alice"`)
	assert.NotContains(t, rec.Body.String(), "hunter22")

	rec = env.do(t, http.MethodGet, "/api/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The revoked token no longer opens protected routes.
	rec = env.do(t, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.token = ""

	rec := env.do(t, http.MethodPost, "/api/login", "application/json",
		strings.NewReader(`{"username":"alice","password":"wrong-one"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid username or password", decodeError(t, rec).Error)

	rec = env.do(t, http.MethodPost, "/api/login", "application/json",
		strings.NewReader(`{"username":"alice","password":"hunter22"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie not set")
	assert.True(t, cookie.HttpOnly)

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(cookie)
	rec = env.send(req, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.token = ""

	tests := []struct {
		name string
		body string
		code core.Code
	}{
		{"duplicate", `{"username":"alice","password":"another1"}`, codeUserExists},
		{"short username", `{"username":"al","password":"hunter22"}`, codeBadRequest},
		{"short password", `{"username":"bob","password":"abc"}`, codeBadRequest},
		{"malformed", `{"username":`, codeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/register", "application/json", strings.NewReader(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestConstituents_RequireSession(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/api/constituents",
		"/api/constituents/download-csv?startDate=2024-01-01&endDate=2024-12-31",
		"/api/profile",
	} {
		rec := env.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}

	env.token = "not-a-token"
	rec := env.do(t, http.MethodGet, "/api/constituents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddAndListConstituents(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do(t, http.MethodPost, "/api/constituents", "application/json",
		strings.NewReader(`{"email":"Ada@Example.com","firstName":"Ada","lastName":"Lovelace","address":"1 Engine Way"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created core.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testNow, created.CreatedAt)

	// Same email in another case merges into the existing record.
	rec = env.do(t, http.MethodPost, "/api/constituents", "application/json",
		strings.NewReader(`{"email":"ada@example.com","firstName":"Augusta","lastName":"King","address":"2 Engine Way"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	var merged core.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &merged))
	assert.Equal(t, created.ID, merged.ID)
	assert.Equal(t, "Augusta", merged.FirstName)
	assert.Equal(t, 1, env.store.Count())

	rec = env.do(t, http.MethodGet, "/api/constituents?page=1&pageSize=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page core.PaginatedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.PageSize)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Augusta", page.Data[0].FirstName)
}

func TestAddConstituent_MissingEmail(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do(t, http.MethodPost, "/api/constituents", "application/json",
		strings.NewReader(`{"email":"  ","firstName":"Ada"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.CodeMissingEmail, decodeError(t, rec).Code)
	assert.Zero(t, env.store.Count())
}

func TestListConstituents_Pagination(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	require.NoError(t, env.store.Seed(25))

	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantSize  int
		wantCount int
	}{
		{"defaults", "", 1, 10, 10},
		{"last partial page", "?page=3&pageSize=10", 3, 10, 5},
		{"past the end", "?page=9&pageSize=10", 9, 10, 0},
		{"non-numeric falls back", "?page=abc&pageSize=xyz", 1, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/constituents"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var page core.PaginatedResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Equal(t, 25, page.Total)
			assert.Equal(t, tt.wantPage, page.Page)
			assert.Equal(t, tt.wantSize, page.PageSize)
			assert.Len(t, page.Data, tt.wantCount)
		})
	}
}

func TestListConstituents_InvalidParams(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do(t, http.MethodGet, "/api/constituents?page=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.CodeInvalidPage, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/constituents?pageSize=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.CodeInvalidPageSize, decodeError(t, rec).Code)
}

func TestDownloadCSV(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	require.NoError(t, env.store.Seed(3))

	rec := env.do(t, http.MethodGet, "/api/constituents/download-csv?startDate=2024-03-15&endDate=2024-03-15", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(core.ExportColumns, ","), strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "constituent1@example.com")
	assert.Contains(t, lines[1], "2024-03-15T10:30:00.000Z")
}

func TestDownloadCSV_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	require.NoError(t, env.store.Seed(1))

	tests := []struct {
		name   string
		query  string
		status int
		code   core.Code
	}{
		{"missing params", "", http.StatusBadRequest, codeBadRequest},
		{"missing end", "?startDate=2024-03-01", http.StatusBadRequest, codeBadRequest},
		{"bad date", "?startDate=yesterday&endDate=2024-03-15", http.StatusBadRequest, core.CodeInvalidDateFormat},
		{"inverted range", "?startDate=2024-03-20&endDate=2024-03-01", http.StatusBadRequest, core.CodeInvalidDateRange},
		{"no records", "?startDate=2020-01-01&endDate=2020-01-31", http.StatusNotFound, core.CodeNoDataFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/constituents/download-csv"+tt.query, "", nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestBatchUpload_CSV(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	csv := "\ufeffEmail,First Name,Last Name,Address\n" +
		"a@example.com,Ann,Lee,1 Oak St\n" +
		",Bob,Ray,2 Oak St\n" +
		"c@example.com,Cid,Moe,3 Oak St\n" +
		"A@EXAMPLE.COM,Annie,Lee,4 Oak St\n" +
		"not-an-email,Eve,Poe,5 Oak St\n"

	body, contentType := multipartCSV(t, "people.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/api/constituents/batch-upload", body)
	rec := env.send(req, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp batchUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "File processed successfully", resp.Message)
	assert.Equal(t, 5, resp.TotalProcessed)
	assert.Equal(t, 3, resp.Successful)
	assert.Equal(t, 2, resp.Failed)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, 2, resp.Errors[0].Row)
	assert.Equal(t, "Bob", resp.Errors[0].Data.FirstName)
	assert.Equal(t, 5, resp.Errors[1].Row)

	// Rows 1 and 4 share an email, so only two records exist. They run in
	// the same chunk, so either may win.
	assert.Equal(t, 2, env.store.Count())
	merged, ok := env.store.FindByEmail("a@example.com")
	require.True(t, ok)
	assert.Contains(t, []string{"Ann", "Annie"}, merged.FirstName)
}

func TestBatchUpload_JSON(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	payload := `[
		{"email":"x@example.com","firstName":"X","lastName":"Ray","address":"1 Elm"},
		{"email":"","firstName":"Y","lastName":"Ray","address":"2 Elm"}
	]`
	rec := env.do(t, http.MethodPost, "/api/constituents/batch-upload", "application/json", strings.NewReader(payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp batchUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 2, resp.Errors[0].Row)
}

func TestBatchUpload_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	t.Run("json object", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/constituents/batch-upload", "application/json",
			strings.NewReader(`{"email":"x@example.com"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, core.CodeInvalidInput, decodeError(t, rec).Code)
	})

	t.Run("no body", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/constituents/batch-upload", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No file uploaded", decodeError(t, rec).Error)
	})

	t.Run("not a csv", func(t *testing.T) {
		body, contentType := multipartCSV(t, "notes.txt", "hello")
		req := httptest.NewRequest(http.MethodPost, "/api/constituents/batch-upload", body)
		rec := env.send(req, contentType)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, codeNotCSV, decodeError(t, rec).Code)
	})

	t.Run("empty csv", func(t *testing.T) {
		body, contentType := multipartCSV(t, "empty.csv", "")
		req := httptest.NewRequest(http.MethodPost, "/api/constituents/batch-upload", body)
		rec := env.send(req, contentType)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "CSV file is empty", decodeError(t, rec).Error)
	})

	assert.Zero(t, env.store.Count())
}

func TestBatchUpload_TooManyUploads(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	// Occupy every slot so the request times out waiting.
	for range env.limiter.MaxConcurrent() {
		require.NoError(t, env.limiter.Acquire(context.Background()))
	}
	defer func() {
		for range env.limiter.MaxConcurrent() {
			env.limiter.Release()
		}
	}()

	rec := env.do(t, http.MethodPost, "/api/constituents/batch-upload", "application/json",
		strings.NewReader(`[{"email":"x@example.com","firstName":"X","lastName":"Ray","address":"1 Elm"}]`))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, core.CodeTooManyUploads, decodeError(t, rec).Code)
}

func TestRespondError_UnknownErrorIsMasked(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	respondError(rec, req, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, core.CodeUnknown, resp.Code)
	assert.NotContains(t, resp.Error, assert.AnError.Error())
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 7},
		{"n=3", 3},
		{"n=%20", 7},
		{"n=abc", 7},
		{"n=0", 0},
		{"n=-2", -2},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		assert.Equal(t, tt.want, parseIntParam(req, "n", 7), tt.query)
	}
}

func TestServer_StartShutdownConcurrently(t *testing.T) {
	env := newTestEnv(t)
	env.srv.server.Addr = "127.0.0.1:0"

	errCh := make(chan error, 1)
	go func() { errCh <- env.srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-ctx.Done():
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.srv.Shutdown(context.Background()))
	assert.ErrorIs(t, env.srv.Start(), http.ErrServerClosed)
}
