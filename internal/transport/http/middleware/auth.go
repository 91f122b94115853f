package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/workforce-biometric/internal/infra/security"
)

const (
	gateClaimsKey = "gate_claims"
	rolesKey      = "roles"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// GateTokenParser validates gate tokens issued upstream after the second factor.
type GateTokenParser interface {
	Parse(token string) (*security.GateClaims, error)
}

// RequireGate validates the bearer gate token and stores the caller identity on the context.
func RequireGate(parser GateTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing gate token"))
			return
		}

		claims, err := parser.Parse(token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrExpiredGateToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "gate token expired"))
			case errors.Is(err, security.ErrSecondFactorRequired):
				c.AbortWithStatusJSON(http.StatusForbidden,
					newErrorResponse(c, "second factor verification required"))
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid gate token"))
			}
			return
		}

		c.Set(IdentityIDKey, claims.IdentityID)
		c.Set(gateClaimsKey, claims)
		c.Set(rolesKey, claims.Roles)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.IdentityID = claims.IdentityID
		}

		c.Next()
	}
}

// RequireRole checks that the authenticated caller has any of the specified roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rolesVal, exists := c.Get(rolesKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		callerRoles, ok := rolesVal.([]string)
		if !ok && rolesVal != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "invalid roles format"))
			return
		}

		if !hasAnyRole(callerRoles, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

func hasAnyRole(callerRoles []string, requiredRoles []string) bool {
	roleMap := make(map[string]bool, len(callerRoles))
	for _, role := range callerRoles {
		roleMap[role] = true
	}

	for _, required := range requiredRoles {
		if roleMap[required] {
			return true
		}
	}
	return false
}

// GetAuthenticatedIdentityID retrieves the gate identity from the context.
func GetAuthenticatedIdentityID(c *gin.Context) (string, bool) {
	identityID, exists := c.Get(IdentityIDKey)
	if !exists {
		return "", false
	}

	if id, ok := identityID.(string); ok {
		return id, true
	}

	return "", false
}
