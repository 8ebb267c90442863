package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

// Claims are the JWT claims accepted by the API. The subject is the caller's
// address; the host treats it as the transaction sender.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 caller tokens.
type Authenticator struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthenticator creates an authenticator. Requests to skipPaths pass
// through unauthenticated.
func NewAuthenticator(secret, issuer string, ttl time.Duration, logger *logging.Logger, skipPaths []string) *Authenticator {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Authenticator{
		secret:    []byte(secret),
		issuer:    issuer,
		ttl:       ttl,
		logger:    logger,
		skipPaths: skip,
	}
}

// Issue signs a token for subject.
func (a *Authenticator) Issue(subject util.Uint160, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   chain.FormatAddress(subject),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Internal("sign token", err)
	}
	return signed, nil
}

// Validate parses tokenString and checks signature, expiry, issuer and
// subject.
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims")
	}
	if _, err := chain.ParseAddress(claims.Subject); err != nil {
		return nil, errors.InvalidToken(err).WithDetails("reason", "subject is not an address")
	}
	return claims, nil
}

// Handler authenticates requests. The token comes from the Authorization
// header, or from the access_token query parameter for websocket clients.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := bearerToken(r)
		if err != nil {
			a.reject(w, r, err)
			return
		}
		claims, err := a.Validate(tokenString)
		if err != nil {
			a.reject(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.Subject)
		if claims.Role != "" {
			ctx = logging.WithRole(ctx, claims.Role)
		}
		a.logger.WithContext(ctx).WithField("role", claims.Role).Debug("authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"error":  err.Error(),
	})
	writeError(w, r, err)
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
		return "", errors.InvalidToken(nil).WithDetails("reason", "missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.InvalidToken(nil).WithDetails("reason", "invalid Authorization header format")
	}
	return parts[1], nil
}

// Caller returns the authenticated caller address stored in ctx.
func Caller(ctx context.Context) (util.Uint160, error) {
	id := logging.GetUserID(ctx)
	if id == "" {
		return util.Uint160{}, errors.InvalidToken(nil).WithDetails("reason", "no authenticated caller")
	}
	return chain.ParseAddress(id)
}
