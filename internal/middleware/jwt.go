package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"scan-licences/internal/logger"
	"scan-licences/internal/model"
)

// Context keys set by JWTAuth.
const (
	KeyOperatorID = "operator_id"
	KeyEmail      = "operator_email"
	KeyAdmin      = "operator_admin"
)

// AllowList reports whether an operator email is still allowed in.
type AllowList func(ctx context.Context, email string) (bool, error)

// Tokens signs and checks operator tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(op *model.Operator) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":   op.ID,
		"email": op.Email,
		"admin": op.Admin,
		"exp":   t.now().Add(t.ttl).Unix(),
	}).SignedString(t.secret)
}

func (t *Tokens) parse(raw string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, err
	}
	return token.Claims.(jwt.MapClaims), nil
}

// JWTAuth rejects requests without a valid bearer token (401) and identities
// dropped from the allow-list (403).
func JWTAuth(t *Tokens, allowed AllowList) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claims, err := t.parse(auth[7:])
		if err != nil || claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		email, _ := claims["email"].(string)
		uid, _ := claims["uid"].(float64)
		admin, _ := claims["admin"].(bool)

		ok, err := allowed(c.Request.Context(), email)
		if err != nil {
			logger.Error("auth.allowlist_failed", "email", email, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": model.Code(err)})
			return
		}
		if !ok {
			logger.Warn("auth.denied", "email", email)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not allow-listed", "code": model.CodePermissionDenied})
			return
		}
		c.Set(KeyOperatorID, int(uid))
		c.Set(KeyEmail, email)
		c.Set(KeyAdmin, admin)

		// renew when less than a day is left
		if exp, ok := claims["exp"].(float64); ok {
			if time.Unix(int64(exp), 0).Sub(t.now()) < 24*time.Hour {
				op := &model.Operator{ID: int(uid), Email: email, Admin: admin}
				if renewed, err := t.Issue(op); err == nil {
					c.Header("X-New-Token", renewed)
				}
			}
		}

		c.Next()
	}
}

// RequireAdmin must run after JWTAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(KeyAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only", "code": model.CodePermissionDenied})
			return
		}
		c.Next()
	}
}
