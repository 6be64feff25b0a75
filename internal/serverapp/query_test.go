package serverapp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-engine/internal/config"
	"query-engine/internal/dbexec"
	"query-engine/internal/graphbuilder"
	"query-engine/internal/middleware"
	"query-engine/internal/models"
	"query-engine/internal/models/modeltest"
	"query-engine/internal/sqlconnector"
)

func exactSQL(sql string) string {
	return "^" + regexp.QuoteMeta(sql) + "$"
}

func newQueryHandler(t *testing.T, dm *models.InternalDataModel) (*queryHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return &queryHandler{
		connector: sqlconnector.New(dbexec.NewStandardExecutor(db), sqlconnector.Options{}),
		dataModel: func() *models.InternalDataModel { return dm },
		limits:    graphbuilder.PageLimits{DefaultPageSize: 50, MaxPageSize: 100},
		maxBytes:  1 << 20,
	}, mock
}

func postQuery(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, queryPath, strings.NewReader(body)))
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	return body.Errors[0].Code
}

func TestQueryHandlerFindMany(t *testing.T) {
	h, mock := newQueryHandler(t, modeltest.Blog())
	mock.ExpectBegin()
	mock.ExpectQuery(exactSQL("SELECT `name`, `id` FROM `user` ORDER BY `id` ASC LIMIT 2")).
		WillReturnRows(sqlmock.NewRows([]string{"name", "id"}).AddRow("Ada", int64(1)))
	mock.ExpectCommit()

	rec := postQuery(h, `{"action":"findMany","model":"User","args":{"first":2},"select":["name"]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"findManyUser":[{"name":"Ada","id":1}]}}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryHandlerAppliesDefaultPageSize(t *testing.T) {
	h, mock := newQueryHandler(t, modeltest.Blog())
	mock.ExpectBegin()
	mock.ExpectQuery(exactSQL("SELECT `id` FROM `tag` ORDER BY `id` ASC LIMIT 50")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	rec := postQuery(h, `{"action":"findMany","model":"Tag","name":"tags","select":["id"]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"data":{"tags":[]}}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryHandlerRollsBackOnFailure(t *testing.T) {
	h, mock := newQueryHandler(t, modeltest.Blog())
	mock.ExpectBegin()
	mock.ExpectQuery("FROM `user`").WillReturnError(errors.New("table user is locked"))
	mock.ExpectRollback()

	rec := postQuery(h, `{"action":"findMany","model":"User"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryHandlerRejectsBeforeTransaction(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed json", body: `{"action":`, status: http.StatusBadRequest, code: "invalid_json"},
		{name: "unknown model", body: `{"action":"findMany","model":"Nope"}`, status: http.StatusBadRequest, code: "invalid_input"},
		{name: "unknown action", body: `{"action":"upsert","model":"User"}`, status: http.StatusBadRequest, code: "invalid_input"},
		{name: "page size above maximum", body: `{"action":"findMany","model":"User","args":{"first":500}}`, status: http.StatusBadRequest, code: "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mock := newQueryHandler(t, modeltest.Blog())
			rec := postQuery(h, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestQueryHandlerSchemaUnavailable(t *testing.T) {
	h, _ := newQueryHandler(t, nil)
	rec := postQuery(h, `{"action":"findMany","model":"User"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "schema_unavailable", errorCode(t, rec))
}

func TestQueryHandlerMethodAndSize(t *testing.T) {
	h, _ := newQueryHandler(t, modeltest.Blog())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, queryPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	h.maxBytes = 16
	rec = postQuery(h, `{"action":"findMany","model":"User","args":{"first":2}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "request_too_large", errorCode(t, rec))
}

func TestClassifyError(t *testing.T) {
	ctx := t.Context()
	status, code, _ := classifyError(ctx, errSchemaUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "schema_unavailable", code)

	status, code, _ = classifyError(ctx, &graphbuilder.InputError{Path: "args.first", Message: "bad"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", code)

	status, _, _ = classifyError(ctx, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestBuildQueryHandlerUsesEngineConfig(t *testing.T) {
	db, _ := newMockDB(t)
	cfg := &config.Config{
		Server: config.ServerConfig{MaxRequestBytes: 2048, RequestTimeout: 5 * time.Second},
		Engine: config.EngineConfig{DefaultPageSize: 20, MaxPageSize: 200, MaxInValues: 10},
	}
	h := buildQueryHandler(cfg, testLogger(), modeltest.Blog, dbexec.NewStandardExecutor(db), nil)

	qh, ok := h.(*queryHandler)
	require.True(t, ok)
	assert.Equal(t, graphbuilder.PageLimits{DefaultPageSize: 20, MaxPageSize: 200}, qh.limits)
	assert.Equal(t, int64(2048), qh.maxBytes)
	assert.Equal(t, 5*time.Second, qh.timeout)
}
