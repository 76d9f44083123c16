package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanflow/api/internal/config"
	"github.com/cleanflow/api/internal/model"
)

func TestLegacyTokenRoundTrip(t *testing.T) {
	token, err := SignLegacyToken("s3cret", "user-1", model.RoleAdmin)
	require.NoError(t, err)

	claims, err := ValidateLegacyToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, "cleanflow-api", claims.Issuer)

	_, err = ValidateLegacyToken(token, "other")
	assert.Error(t, err)
	_, err = ValidateLegacyToken("garbage", "s3cret")
	assert.Error(t, err)
}

func TestClaimsRole(t *testing.T) {
	tests := []struct {
		name   string
		claims Claims
		want   string
	}{
		{"no roles", Claims{}, model.RoleCleaner},
		{"plain admin", Claims{Roles: []string{"cleaner", "Admin"}}, model.RoleAdmin},
		{"project admin", Claims{ProjectRoles: map[string]map[string]string{"admin": {"org": "acme"}}}, model.RoleAdmin},
		{"project cleaner", Claims{ProjectRoles: map[string]map[string]string{"cleaner": {}}}, model.RoleCleaner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.Role())
		})
	}
}

func TestNewJWKSVerifierRequiresIssuer(t *testing.T) {
	_, err := NewJWKSVerifier(&config.ZitadelConfig{Domain: "auth.example.com"})
	assert.Error(t, err)
}
