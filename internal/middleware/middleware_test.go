package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackedRequest struct {
	method, path string
	status       int
}

type recorder struct {
	seen []trackedRequest
}

func (r *recorder) TrackRequest(method, path string, status int, _ time.Duration) {
	r.seen = append(r.seen, trackedRequest{method: method, path: path, status: status})
}

func newEngine(rec RequestRecorder, origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestID(), Logger(zerolog.Nop(), rec), Recovery(zerolog.Nop()), CORS(origins))
	engine.GET("/items/:id", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFrom(c))
	})
	engine.GET("/panic", func(*gin.Context) {
		panic("boom")
	})
	return engine
}

func TestRequestIDPropagation(t *testing.T) {
	engine := newEngine(nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set(requestIDHeader, "abc")
	engine.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(requestIDHeader))
	assert.Equal(t, "abc", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	generated := w.Header().Get(requestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())
}

func TestLoggerRecordsRouteTemplate(t *testing.T) {
	rec := &recorder{}
	engine := newEngine(rec, nil)

	for _, path := range []string{"/items/1", "/items/2", "/nowhere"} {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, rec.seen, 3)
	assert.Equal(t, trackedRequest{method: "GET", path: "/items/:id", status: 200}, rec.seen[0])
	assert.Equal(t, "/items/:id", rec.seen[1].path)
	assert.Equal(t, trackedRequest{method: "GET", path: "unmatched", status: 404}, rec.seen[2])
}

func TestRecoveryReturns500(t *testing.T) {
	rec := &recorder{}
	engine := newEngine(rec, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, w.Body.String())
	require.Len(t, rec.seen, 1)
	assert.Equal(t, 500, rec.seen[0].status)
}

func TestCORS(t *testing.T) {
	engine := newEngine(nil, []string{"https://app.example"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/items/1", nil)
	req.Header.Set("Origin", "https://app.example")
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set("Origin", "https://evil.example")
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
