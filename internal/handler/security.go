package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
)

var errUnauthorized = errors.New("unauthorized")

// Claims are the bearer token claims understood by the API.
type Claims struct {
	Role     string `json:"role"`
	BranchID *int64 `json:"branchId,omitempty"`
	jwt.RegisteredClaims
}

// SecurityConfig configures bearer token verification.
type SecurityConfig struct {
	Secret []byte
	// Issuer, when set, must match the iss claim.
	Issuer string
	Leeway time.Duration
}

// Security authenticates requests carrying an HS256 bearer token.
type Security struct {
	secret []byte
	parser *jwt.Parser
}

// NewSecurity creates a Security. The secret must not be empty.
func NewSecurity(cfg SecurityConfig) (*Security, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Security{secret: cfg.Secret, parser: jwt.NewParser(opts...)}, nil
}

// Authenticate resolves the token into a requester.
func (s *Security) Authenticate(token string) (*auth.Requester, error) {
	var claims Claims
	if _, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.Errorf("invalid subject %q", claims.Subject)
	}
	role, ok := auth.ParseRole(claims.Role)
	if !ok {
		return nil, errors.Errorf("invalid role %q", claims.Role)
	}
	return &auth.Requester{ID: id, Role: role, BranchID: claims.BranchID}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// requester in the request context.
func (s *Security) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, r, errUnauthorized)
			return
		}
		requester, err := s.Authenticate(token)
		if err != nil {
			zctx.From(r.Context()).Debug("Token rejected", zap.Error(err))
			writeError(w, r, errUnauthorized)
			return
		}

		ctx := auth.WithRequester(r.Context(), requester)
		ctx = zctx.With(ctx,
			zap.Int64("requester_id", requester.ID),
			zap.String("requester_role", string(requester.Role)),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Sign issues a token for the claims. Used by tooling and tests.
func (s *Security) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func bearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
