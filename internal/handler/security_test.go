package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
)

func TestAuthenticate(t *testing.T) {
	s := newSecurity(t)
	branch := int64(2)

	r, err := s.Authenticate(token(t, s, 11, auth.RoleStaff, &branch))
	require.NoError(t, err)
	assert.Equal(t, int64(11), r.ID)
	assert.Equal(t, auth.RoleStaff, r.Role)
	assert.True(t, r.InBranch(&branch))
}

func TestAuthenticate_Rejects(t *testing.T) {
	s := newSecurity(t)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	other, err := NewSecurity(SecurityConfig{Secret: []byte("other"), Issuer: "orders"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		signer *Security
		claims Claims
	}{
		{"wrong secret", other, Claims{Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "orders", ExpiresAt: exp}}},
		{"expired", s, Claims{Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{
			Subject: "1", Issuer: "orders", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}}},
		{"no expiry", s, Claims{Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "orders"}}},
		{"wrong issuer", s, Claims{Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "evil", ExpiresAt: exp}}},
		{"unknown role", s, Claims{Role: "ROOT", RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "orders", ExpiresAt: exp}}},
		{"bad subject", s, Claims{Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{Subject: "abc", Issuer: "orders", ExpiresAt: exp}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := tt.signer.Sign(tt.claims)
			require.NoError(t, err)
			_, err = s.Authenticate(tok)
			assert.Error(t, err)
		})
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	s := newTestServer(t, &mockOrders{}, &mockPayments{})

	code, data := s.do(http.MethodGet, "/orders/42", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	c, msg := errorBody(t, data)
	assert.Equal(t, http.StatusUnauthorized, c)
	assert.Equal(t, "unauthorized", msg)
}

func TestBearer(t *testing.T) {
	tok, ok := bearer("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	tok, ok = bearer("bearer   xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	_, ok = bearer("Basic abc")
	assert.False(t, ok)
	_, ok = bearer("Bearer ")
	assert.False(t, ok)
}

func TestNewSecurity_RequiresSecret(t *testing.T) {
	_, err := NewSecurity(SecurityConfig{})
	require.Error(t, err)
}
