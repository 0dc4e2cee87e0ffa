// Package auth implements bearer-token protection for the control API.
// Tokens are HS256 JWTs carrying the operator's subject; authentication is
// active only when a secret key is configured.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmsavelyev/chatvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token claim set: the registered claims plus the operator
// subject the token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	Operator string
}

func GenerateToken(subject string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Operator: subject,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetSubjectFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", common.ErrorInvalidToken
	}

	return claims.Operator, nil
}

// Middleware rejects requests without a valid bearer token. With an empty
// secret key it is a no-op and the API is open.
func Middleware(secretKey string, next http.Handler) http.Handler {
	if secretKey == "" {
		return next
	}

	key := []byte(secretKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AccessTokenHeaderName)
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		if _, err := GetSubjectFromToken(tokenString, key); err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
