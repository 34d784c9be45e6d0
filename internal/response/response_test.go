package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var r Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func TestInternalHidesDetailInReleaseMode(t *testing.T) {
	prev := gin.Mode()
	t.Cleanup(func() { gin.SetMode(prev) })

	gin.SetMode(gin.ReleaseMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Internal(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	r := decode(t, w)
	require.NotNil(t, r.Error)
	assert.Equal(t, ErrInternal, r.Error.Code)
	assert.Empty(t, r.Error.Fields)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestInternalShowsDetailInDebugMode(t *testing.T) {
	prev := gin.Mode()
	t.Cleanup(func() { gin.SetMode(prev) })

	gin.SetMode(gin.DebugMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Internal(c, errors.New("boom"))

	r := decode(t, w)
	require.NotNil(t, r.Error)
	assert.Equal(t, "boom", r.Error.Fields["detail"])
}

func TestFailWithDataKeepsData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(ContextKeyRequestID, "req-1")

	FailWithData(c, http.StatusConflict, ErrActiveExamExists, gin.H{"exam_id": "abc"})

	assert.Equal(t, http.StatusConflict, w.Code)
	r := decode(t, w)
	assert.Equal(t, ErrActiveExamExists, r.Error.Code)
	assert.Equal(t, "req-1", r.Metadata.RequestID)
	assert.Equal(t, map[string]any{"exam_id": "abc"}, r.Data)
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { Success(c, http.StatusOK, nil) })

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"caller id kept", "edge-4f2a_01", true},
		{"missing id generated", "", false},
		{"unsafe id replaced", "abc\r\nX-Evil: 1", false},
		{"overlong id replaced", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(HeaderRequestID)
			require.NotEmpty(t, got)
			assert.Equal(t, got, decode(t, w).Metadata.RequestID)
			if tt.keep {
				assert.Equal(t, tt.header, got)
			} else {
				assert.NotEqual(t, tt.header, got)
			}
		})
	}
}
