package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/observability"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, map[string]int{"count": 3}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
}

func TestWriteErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter)
		wantStatus int
		wantBody   string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad input") }, http.StatusBadRequest, `{"error":"bad input"}`},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "who are you") }, http.StatusUnauthorized, `{"error":"who are you"}`},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "no") }, http.StatusForbidden, `{"error":"no"}`},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "gone") }, http.StatusNotFound, `{"error":"gone"}`},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("boom")) }, http.StatusInternalServerError, `{"error":"boom"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestParseJSON(t *testing.T) {
	var dest struct {
		TeamID int64 `json:"team_id"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"team_id": 11}`))
	require.NoError(t, ParseJSON(req, &dest))
	assert.Equal(t, int64(11), dest.TeamID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	err := ParseJSON(req, &dest)
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestParsePathInt64(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"team_id": "42"})

	val, err := ParsePathInt64(req, "team_id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), val)

	_, err = ParsePathInt64(req, "identity_id")
	assert.ErrorContains(t, err, "missing path parameter")

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"team_id": "abc"})
	_, err = ParsePathInt64(req, "team_id")
	assert.ErrorContains(t, err, "invalid integer")
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25", nil)

	val, err := ParseQueryInt(req, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 25, val)

	val, err = ParseQueryInt(req, "offset", 0)
	require.NoError(t, err)
	assert.Zero(t, val)

	req = httptest.NewRequest(http.MethodGet, "/?limit=many", nil)
	_, err = ParseQueryInt(req, "limit", 50)
	assert.Error(t, err)
}

func TestLoggingMiddlewareStatus(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, nil)

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, nil)

	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(tag("outer"), tag("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
