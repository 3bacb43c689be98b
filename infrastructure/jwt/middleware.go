// Package jwt authenticates fleet monitor API callers with HS256 bearer tokens.
package jwt

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const claimsKey = "claims"

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims.
type Claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

// Sign mints an HS256 token for subject valid for ttl.
func Sign(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse validates tokenString against secret.
func Parse(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token. An empty secret
// disables authentication.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		scheme, tokenString, found := strings.Cut(c.GetHeader("Authorization"), " ")
		switch {
		case !found && scheme == "":
			unauthorized(c, "missing authorization header")
			return
		case !found || scheme != "Bearer" || tokenString == "":
			unauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := Parse(secret, tokenString)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// GetClaims extracts claims from the gin context.
func GetClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	cl, ok := claims.(*Claims)
	return cl, ok
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "category": "permission"})
}
