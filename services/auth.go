package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmalhotra98/intervue/backend/repository"
)

// Principal identifies the authenticated caller for one request. Tokens
// are minted by the external auth service; the engine only verifies and
// consumes them.
type Principal struct {
	UserID  string
	Email   string
	IsAdmin bool
}

type principalKey struct{}

// PrincipalFrom returns the request principal placed by AuthMiddleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type AuthService struct {
	repo      *repository.Repository
	jwtSecret []byte
}

type tokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func NewAuthService(repo *repository.Repository, jwtSecret string) *AuthService {
	return &AuthService{repo: repo, jwtSecret: []byte(jwtSecret)}
}

// Authenticate verifies a bearer token and resolves its user. The admin
// flag comes from the user row, never from the token.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, E(KindUnauthorized, "invalid token", err)
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Principal{}, E(KindUnauthorized, "token has no subject", nil)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Principal{}, E(KindUnauthorized, "unknown user", err)
		}
		return Principal{}, err
	}
	return Principal{UserID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin}, nil
}

// AuthMiddleware rejects requests without a valid bearer token and puts
// the principal on the request context.
func (s *AuthService) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			WriteError(w, r, E(KindUnauthorized, "missing bearer token", nil))
			return
		}
		principal, err := s.Authenticate(r.Context(), token)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
