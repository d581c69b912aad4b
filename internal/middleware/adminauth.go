package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nsproc/rpcgateway/internal/rpcerrors"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

// adminClaims is the JWT claim set an operator token must carry to reach
// the /admin/cache introspection endpoint.
type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth guards administrative endpoints with an HS256 JWT bearer
// token carrying role "admin", the same Authorization: Bearer flow the
// teacher's own JWT middleware uses.
type AdminAuth struct {
	secret []byte
	log    *logger.Logger
}

func NewAdminAuth(secret []byte, log *logger.Logger) *AdminAuth {
	return &AdminAuth{secret: secret, log: log}
}

func (a *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			a.deny(w, r, "missing bearer token")
			return
		}

		claims := &adminClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, rpcerrors.InvalidRequest("unexpected signing method")
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			a.deny(w, r, "invalid admin token")
			return
		}
		if claims.Role != "admin" {
			a.deny(w, r, "token does not carry admin role")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *AdminAuth) deny(w http.ResponseWriter, r *http.Request, reason string) {
	a.log.WithFields(map[string]interface{}{"path": r.URL.Path, "reason": reason}).Warn("admin auth denied")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}`))
}
