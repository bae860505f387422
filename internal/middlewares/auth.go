package middlewares

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tenantflow/channel-connector/internal/platform/logger"

	"github.com/golang-jwt/jwt"
	"github.com/sirupsen/logrus"
)

const (
	authErrorMessage = "Authentication failed"

	RoleUser       = "user"
	RoleSupervisor = "supervisor"
	RoleSuperuser  = "superuser"
)

// Principal describes the authenticated caller of an API endpoint.
type Principal interface {
	GetTenant() string
	GetUser() string
	GetRole() string
}

type key int

var principalKey key

type tokenPrincipal struct {
	tenant, user, role string
}

func (tp tokenPrincipal) GetTenant() string {
	return tp.tenant
}

func (tp tokenPrincipal) GetUser() string {
	return tp.user
}

func (tp tokenPrincipal) GetRole() string {
	return tp.role
}

// IsSuperuser reports whether the principal may cross tenant boundaries.
func IsSuperuser(p Principal) bool {
	return p.GetRole() == RoleSuperuser
}

// IsSupervisor reports whether the principal may manage tenant resources.
func IsSupervisor(p Principal) bool {
	return p.GetRole() == RoleSupervisor || p.GetRole() == RoleSuperuser
}

// GetPrincipal returns the principal stored in the request context by the
// auth middleware.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(tokenPrincipal)
	return p, ok
}

// TokenClaims are the claims carried by the bearer tokens issued for this
// service.
type TokenClaims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

// AuthMiddleware validates the bearer token and stores the resulting
// principal in the request context.
type AuthMiddleware struct {
	SigningKey string
}

func (amw *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		rawToken, err := extractBearerToken(r)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Debug("Authentication failure")
			http.Error(w, authErrorMessage, 401)
			return
		}

		claims, err := amw.parseToken(rawToken)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Debug("Authentication failure")
			http.Error(w, authErrorMessage, 401)
			return
		}

		principal := tokenPrincipal{tenant: claims.TenantID, user: claims.UserID, role: claims.Role}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (amw *AuthMiddleware) parseToken(rawToken string) (*TokenClaims, error) {
	claims := &TokenClaims{}

	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected token signing method: %v", t.Header["alg"])
		}
		return []byte(amw.SigningKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("Invalid token")
	}

	switch {
	case claims.TenantID == "":
		return nil, errors.New("Token is missing the tenant_id claim")
	case claims.UserID == "":
		return nil, errors.New("Token is missing the user_id claim")
	}

	if claims.Role == "" {
		claims.Role = RoleUser
	}

	return claims, nil
}

// extractBearerToken pulls the token out of the Authorization header, falling
// back to the "token" query parameter for websocket clients that cannot set
// request headers.
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", errors.New("Authorization header is not a bearer token")
		}
		return strings.TrimPrefix(header, "Bearer "), nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", errors.New("Missing Authorization header")
}
