package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindBody(t *testing.T, body string, dst interface{}) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBindQuestionRequest(t *testing.T) {
	Setup()

	var ok model.QuestionRequest
	fields := bindBody(t, `{"category":"signs","prompt":"What does a red octagon mean?","options":["Stop","Yield"],"correct_answer":0}`, &ok)
	assert.Nil(t, fields)
	require.NotNil(t, ok.CorrectAnswer)
	assert.Equal(t, 0, *ok.CorrectAnswer)

	var blank model.QuestionRequest
	fields = bindBody(t, `{"category":"signs","prompt":"   ","options":["Stop","  "],"correct_answer":0}`, &blank)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "prompt")
	assert.Contains(t, fields, "options[1]")
	assert.Contains(t, fields["prompt"], "must not be blank")

	var missing model.QuestionRequest
	fields = bindBody(t, `{"category":"signs","prompt":"Stop?","options":["Stop"]}`, &missing)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "options")
	assert.Contains(t, fields, "correct_answer")
}

func TestBindNestedSimulationConfig(t *testing.T) {
	Setup()

	var req model.CreateSimulationRequest
	fields := bindBody(t, `{"config":{"time_per_question":1}}`, &req)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "config.time_per_question")
}

func TestBindMalformedJSON(t *testing.T) {
	Setup()

	var req model.LoginRequest
	fields := bindBody(t, `{"email":`, &req)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "detail")
}
