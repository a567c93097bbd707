package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(New(KindValidation, "bad")))
	assert.Equal(t, KindConflict, KindOf(Wrap(KindConflict, "dup", errors.New("boom"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("底层原因")
	err := Wrap(KindInternal, "外层", cause)
	assert.True(t, errors.Is(err, cause))
}

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Respond(c, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespondStatusMapping(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindAuthentication, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w, body := respond(t, New(tc.kind, "消息"))
		assert.Equal(t, tc.status, w.Code)
		assert.Equal(t, string(tc.kind), body["error"])
		assert.Equal(t, "消息", body["message"])
	}
}

func TestRespondHidesInternalDetails(t *testing.T) {
	w, body := respond(t, errors.New("数据库连接字符串泄露"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(KindInternal), body["error"])
	assert.NotContains(t, body["message"], "泄露")
	_, hasDetails := body["details"]
	assert.False(t, hasDetails, "内部错误不应携带details")
}

func TestRespondExposesWrappedDetailsForClientErrors(t *testing.T) {
	_, body := respond(t, Wrap(KindValidation, "输入不合法", errors.New("问题不能为空")))
	assert.Equal(t, "问题不能为空", body["details"])
}
