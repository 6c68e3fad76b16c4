// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

import (
	"errors"
	"net/http"

	"farmacaixa/internal/model"

	"github.com/gin-gonic/gin"
)

// VocabularyHeader carries the version of the error code vocabulary.
const VocabularyHeader = "X-Error-Vocabulary"

// CodeInternal is used for failures outside the domain vocabulary.
const CodeInternal = "INTERNAL_ERROR"

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
// Clients branch on Code; Detail is for humans.
type APIError struct {
	Code   string            `json:"code"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

func New(code, msg string) *APIError {
	return &APIError{Code: code, Detail: msg}
}

// Abort writes body with status, stamps the vocabulary version and stops
// the handler chain. Every error response leaves through here.
func Abort(c *gin.Context, status int, body *APIError) {
	c.Header(VocabularyHeader, model.ErrorVocabularyVersion)
	c.AbortWithStatusJSON(status, body)
}

func NewValidation(fields map[string]string) *APIError {
	return &APIError{Code: model.CodeValidation, Detail: "invalid input", Fields: fields}
}

// FromError converts any error into a status code and envelope. Domain errors
// keep their code; anything else is reported as an opaque internal error.
func FromError(err error) (int, *APIError) {
	var de *model.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, New(CodeInternal, "internal server error")
	}
	body := &APIError{Code: de.Code, Detail: de.Message, Fields: de.Fields}
	return Status(de.Code), body
}

// Status maps a domain code onto its HTTP status.
func Status(code string) int {
	switch code {
	case model.CodeValidation:
		return http.StatusUnprocessableEntity
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeAlreadyOpen, model.CodeAlreadyClosed, model.CodeInvalidState:
		return http.StatusConflict
	case model.CodeTransient:
		return http.StatusServiceUnavailable
	case model.CodeUnauthorized:
		return http.StatusUnauthorized
	case model.CodeForbidden:
		return http.StatusForbidden
	case model.CodeRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
