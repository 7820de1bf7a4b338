package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("smartlab", "secret", time.Hour, 24*time.Hour)

	pair, err := iss.Issue("lab-door-1", RoleDevice)
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := iss.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "lab-door-1", claims.Subject)
	assert.Equal(t, RoleDevice, claims.Role)

	_, err = NewIssuer("other", "secret", time.Hour, time.Hour).Parse(pair.AccessToken)
	assert.Error(t, err)
	_, err = NewIssuer("smartlab", "wrong", time.Hour, time.Hour).Parse(pair.AccessToken)
	assert.Error(t, err)

	_, err = iss.Issue("x", "root")
	assert.Error(t, err)
	_, err = iss.Issue("", RoleAdmin)
	assert.Error(t, err)
}

func TestTokenTypes(t *testing.T) {
	iss := NewIssuer("smartlab", "secret", time.Hour, 24*time.Hour)
	pair, err := iss.Issue("lab-door-1", RoleDevice)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := iss.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)
	_, err = iss.ParseAccess(pair.RefreshToken)
	assert.Error(t, err)

	claims, err = iss.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, claims.Type)
	_, err = iss.ParseRefresh(pair.AccessToken)
	assert.Error(t, err)

	again, err := iss.Issue("lab-door-1", RoleDevice)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, again.RefreshToken)
}

func TestParseRejectsExpired(t *testing.T) {
	iss := NewIssuer("smartlab", "secret", time.Minute, time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := iss.Issue("ops", RoleAdmin)
	require.NoError(t, err)
	_, err = iss.Parse(pair.AccessToken)
	assert.Error(t, err)
}

func TestBearerRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("smartlab", "secret", time.Hour, time.Hour)
	r := gin.New()
	r.GET("/admin", Bearer(iss, RoleAdmin), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Subject)
	})

	device, err := iss.Issue("lab-door-1", RoleDevice)
	require.NoError(t, err)
	admin, err := iss.Issue("ops", RoleAdmin)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + device.AccessToken, http.StatusForbidden},
		{"refresh token", "Bearer " + admin.RefreshToken, http.StatusUnauthorized},
		{"admin", "bearer " + admin.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
