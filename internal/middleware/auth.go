package middleware

import (
	"net/http"
	"strings"

	"farmacaixa/internal/apierror"
	"farmacaixa/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ClaimsKey = "claims"
)

// Roles understood by the caixa API.
const (
	RoleCashier    = "cashier"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
	RoleSales      = "sales" // the sales subsystem posting settlements
)

// JWTClaims are the custom claims embedded in every access token issued by
// the identity service.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Rol      string `json:"rol"`
	// LocationID binds the token to one till; nil = any location.
	LocationID *string `json:"location_id,omitempty"`
	jwt.RegisteredClaims
}

// ActorID parses UserID; uuid.Nil when malformed.
func (c *JWTClaims) ActorID() uuid.UUID {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Scope is the bound location, or "" for an unrestricted token.
func (c *JWTClaims) Scope() string {
	if c.LocationID == nil {
		return ""
	}
	return *c.LocationID
}

// JWTAuth validates the Bearer token on every protected route. issuer is
// checked when non-empty.
func JWTAuth(secret, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			apierror.Abort(c, http.StatusUnauthorized, apierror.New(model.CodeUnauthorized, "authentication required"))
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, opts...)

		if err != nil || !token.Valid || claims.ActorID() == uuid.Nil {
			apierror.Abort(c, http.StatusUnauthorized, apierror.New(model.CodeUnauthorized, "invalid or expired token"))
			return
		}

		c.Set(ClaimsKey, claims)

		// enrich the request logger with the caller
		logger := zerolog.Ctx(c.Request.Context()).With().
			Str("actor_id", claims.UserID).
			Str("role", claims.Rol).
			Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

// RequireRole rejects requests whose JWT role is not in the allowed list.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		claims, ok := c.MustGet(ClaimsKey).(*JWTClaims)
		if !ok || !allowed[claims.Rol] {
			apierror.Abort(c, http.StatusForbidden, apierror.New(model.CodeForbidden, "insufficient permissions"))
			return
		}
		c.Next()
	}
}

// GetClaims is a helper to retrieve typed claims from the Gin context.
func GetClaims(c *gin.Context) *JWTClaims {
	claims, _ := c.MustGet(ClaimsKey).(*JWTClaims)
	return claims
}
