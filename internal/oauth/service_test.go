package oauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-jwt-secret"

func testRegistry(t *testing.T) ClientRegistry {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewStaticRegistry([]Client{
		{ID: "entra-tenant", SecretHash: string(hash), Scopes: []string{"scim:read", "scim:write"}},
	})
}

func TestTokenService_Issue(t *testing.T) {
	svc := NewTokenService(testRegistry(t), testSecret, "scimtool", time.Hour, zap.NewNop())

	resp, err := svc.Issue("entra-tenant", "s3cret")
	require.NoError(t, err)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "scim:read scim:write", resp.Scope)
	assert.NotEmpty(t, resp.AccessToken)

	// Token must carry the standard claims
	token, err := jwt.Parse(resp.AccessToken, func(t *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "entra-tenant", claims["sub"])
	assert.Equal(t, "entra-tenant", claims["client_id"])
	assert.Equal(t, "scimtool", claims["iss"])
	assert.NotNil(t, claims["iat"])
	assert.NotNil(t, claims["exp"])
}

func TestTokenService_IssueRejected(t *testing.T) {
	svc := NewTokenService(testRegistry(t), testSecret, "scimtool", time.Hour, zap.NewNop())

	tests := []struct {
		name   string
		id     string
		secret string
	}{
		{name: "wrong secret", id: "entra-tenant", secret: "wrong"},
		{name: "unknown client", id: "nobody", secret: "s3cret"},
		{name: "empty secret", id: "entra-tenant", secret: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Issue(tt.id, tt.secret)
			require.Error(t, err)

			tokenErr, ok := err.(*TokenError)
			require.True(t, ok)
			assert.Equal(t, "invalid_client", tokenErr.Code)
		})
	}
}

func TestTokenService_Validate(t *testing.T) {
	svc := NewTokenService(testRegistry(t), testSecret, "scimtool", time.Hour, zap.NewNop())

	resp, err := svc.Issue("entra-tenant", "s3cret")
	require.NoError(t, err)

	info, err := svc.Validate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "entra-tenant", info.ClientID)
	assert.Equal(t, "scim:read scim:write", info.Scope)
}

func TestTokenService_ValidateRejectsExpired(t *testing.T) {
	svc := NewTokenService(testRegistry(t), testSecret, "scimtool", time.Hour, zap.NewNop())
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	resp, err := svc.Issue("entra-tenant", "s3cret")
	require.NoError(t, err)

	_, err = svc.Validate(resp.AccessToken)
	require.Error(t, err)
}

func TestTokenService_ValidateRejectsWrongKey(t *testing.T) {
	issuer := NewTokenService(testRegistry(t), "other-secret", "scimtool", time.Hour, zap.NewNop())
	resp, err := issuer.Issue("entra-tenant", "s3cret")
	require.NoError(t, err)

	svc := NewTokenService(testRegistry(t), testSecret, "scimtool", time.Hour, zap.NewNop())
	_, err = svc.Validate(resp.AccessToken)
	require.Error(t, err)
}

func TestTokenService_ValidateRejectsUnsignedToken(t *testing.T) {
	svc := NewTokenService(testRegistry(t), testSecret, "scimtool", time.Hour, zap.NewNop())

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"client_id": "x"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	require.Error(t, err, "alg=none must be rejected")
}

func TestTokenService_DefaultTTL(t *testing.T) {
	svc := NewTokenService(testRegistry(t), testSecret, "scimtool", 0, zap.NewNop())
	resp, err := svc.Issue("entra-tenant", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, 3600, resp.ExpiresIn)
}
