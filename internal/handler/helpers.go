package handler

import (
	"net/http"
	"reflect"
	"strings"

	"farmacaixa/internal/apierror"
	"farmacaixa/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// retryAfterSeconds is sent with TRANSIENT_STORE_ERROR responses.
const retryAfterSeconds = "1"

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// report JSON / query names instead of Go field names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeAPIError(c, http.StatusUnprocessableEntity, &apierror.APIError{
			Code:   model.CodeValidation,
			Detail: "malformed JSON body",
		})
		return false
	}
	return runValidation(c, req)
}

// bindQuery is bindAndValidate for query strings.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		writeAPIError(c, http.StatusUnprocessableEntity, &apierror.APIError{
			Code:   model.CodeValidation,
			Detail: "malformed query string",
		})
		return false
	}
	return runValidation(c, req)
}

func runValidation(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		writeAPIError(c, http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// writeError maps err onto the error vocabulary and writes the response.
func writeError(c *gin.Context, err error) {
	status, body := apierror.FromError(err)
	if status == http.StatusInternalServerError {
		// keep the detail in the logs, not in the response
		_ = c.Error(err)
		log.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	writeAPIError(c, status, body)
}

func writeAPIError(c *gin.Context, status int, body *apierror.APIError) {
	apierror.Abort(c, status, body)
}

// toCents converts a decimal amount from a request into minor units.
func toCents(field string, d decimal.Decimal) (model.Cents, error) {
	cents, ok := model.CentsFromDecimal(d)
	if !ok {
		return 0, model.Validation(field, "amount must have at most two decimal places and be within range")
	}
	return cents, nil
}
