package middleware

import (
	"fmt"
	"net/http"
	"time"

	"farmacaixa/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var internalError = apierror.New(apierror.CodeInternal, "internal server error")

// ErrorHandler turns errors attached with c.Error into an opaque 500 when
// the handler wrote nothing. Details stay in the log.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		log.Ctx(c.Request.Context()).Error().
			Strs("errors", c.Errors.Errors()).
			Str("route", c.FullPath()).
			Msg("request failed")

		if !c.Writer.Written() {
			apierror.Abort(c, http.StatusInternalServerError, internalError)
		}
	}
}

// Recovery converts a panic into the same opaque 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Ctx(c.Request.Context()).Error().
				Str("panic", fmt.Sprint(r)).
				Str("route", c.FullPath()).
				Msg("panic recovered")
			if !c.Writer.Written() {
				apierror.Abort(c, http.StatusInternalServerError, internalError)
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}

// Logger writes one line per request; 5xx at error level, 4xx at warn.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zerolog.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zerolog.WarnLevel
		}
		log.Ctx(c.Request.Context()).WithLevel(level).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
