package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"farmacaixa/internal/apierror"
	"farmacaixa/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestWriteError_TransientAddsRetryAfter(t *testing.T) {
	c, w := newTestContext()
	writeError(c, model.Transient(errors.New("dial tcp: i/o timeout")))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, retryAfterSeconds, w.Header().Get("Retry-After"))
	assert.Equal(t, model.ErrorVocabularyVersion, w.Header().Get(apierror.VocabularyHeader))

	var body apierror.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, model.CodeTransient, body.Code)
	assert.NotContains(t, w.Body.String(), "i/o timeout")
}

func TestWriteError_UnknownErrorIsOpaque(t *testing.T) {
	c, w := newTestContext()
	writeError(c, errors.New(`pq: relation "cash_sessions" does not exist`))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body apierror.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apierror.CodeInternal, body.Code)
	assert.NotContains(t, w.Body.String(), "cash_sessions")
	assert.Len(t, c.Errors, 1)
}

func TestWriteError_DomainCodes(t *testing.T) {
	cases := map[error]int{
		model.ErrValidation:    http.StatusUnprocessableEntity,
		model.ErrNotFound:      http.StatusNotFound,
		model.ErrAlreadyOpen:   http.StatusConflict,
		model.ErrAlreadyClosed: http.StatusConflict,
		model.ErrInvalidState:  http.StatusConflict,
	}
	for err, status := range cases {
		c, w := newTestContext()
		writeError(c, err)
		assert.Equal(t, status, w.Code, model.CodeOf(err))
		assert.Empty(t, w.Header().Get("Retry-After"))
	}
}

func TestToCents(t *testing.T) {
	c, err := toCents("amount", decimal.RequireFromString("45.50"))
	require.NoError(t, err)
	assert.Equal(t, model.Cents(4550), c)

	_, err = toCents("amount", decimal.RequireFromString("45.505"))
	assert.ErrorIs(t, err, model.ErrValidation)
}
