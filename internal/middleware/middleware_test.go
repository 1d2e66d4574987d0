package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/gotrue-go/types"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signToken(t *testing.T, subject, email string, exp time.Time) string {
	t.Helper()
	claims := helpers.CustomClaims{
		Role:  "authenticated",
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) RefreshToken(ctx context.Context, refreshToken string) (*types.TokenResponse, error) {
	args := m.Called(ctx, refreshToken)
	res, _ := args.Get(0).(*types.TokenResponse)
	return res, args.Error(1)
}

type seen struct {
	identity *session.Identity
	token    string
}

func newAuthRouter(t *testing.T, refresher TokenRefresher, required bool) (*gin.Engine, *seen) {
	t.Helper()
	v, err := helpers.NewTokenValidator(context.Background(), "", testSecret)
	require.NoError(t, err)
	auth := NewAuthenticator(v, refresher, quietLogger(), false)

	got := &seen{}
	guard := auth.Optional()
	if required {
		guard = auth.Required()
	}
	r := gin.New()
	r.GET("/me", guard, func(c *gin.Context) {
		if v, ok := c.Get(helpers.SessionKey); ok {
			got.identity = v.(*session.Identity)
		}
		got.token = models.AccessTokenFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})
	return r, got
}

func TestRequired(t *testing.T) {
	valid := signToken(t, "u-ama", "ama@example.com", time.Now().Add(time.Hour))

	tcases := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
		wantID     string
	}{
		{
			name:       "no token",
			prepare:    func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "bearer token",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+valid)
			},
			wantStatus: http.StatusOK,
			wantID:     "u-ama",
		},
		{
			name: "cookie token",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: helpers.AccessTokenCookie, Value: valid})
			},
			wantStatus: http.StatusOK,
			wantID:     "u-ama",
		},
		{
			name: "garbage token",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer not-a-jwt")
			},
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r, got := newAuthRouter(t, nil, true)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.prepare(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantID == "" {
				assert.Nil(t, got.identity)
				return
			}
			require.NotNil(t, got.identity)
			assert.Equal(t, tc.wantID, got.identity.ID)
			assert.Equal(t, "ama@example.com", got.identity.Email)
			assert.Equal(t, valid, got.token)
		})
	}
}

func TestRequiredRefreshesExpiredToken(t *testing.T) {
	expired := signToken(t, "u-ama", "ama@example.com", time.Now().Add(-time.Minute))
	fresh := signToken(t, "u-ama", "ama@example.com", time.Now().Add(time.Hour))

	res := &types.TokenResponse{}
	res.AccessToken = fresh
	res.RefreshToken = "refresh-2"
	res.ExpiresIn = 3600
	res.User.ID = uuid.New()

	refresher := &mockRefresher{}
	refresher.On("RefreshToken", mock.Anything, "refresh-1").Return(res, nil).Once()

	r, got := newAuthRouter(t, refresher, true)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: helpers.AccessTokenCookie, Value: expired})
	req.AddCookie(&http.Cookie{Name: helpers.RefreshTokenCookie, Value: "refresh-1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.identity)
	assert.Equal(t, "u-ama", got.identity.ID)
	assert.Equal(t, fresh, got.token)

	cookies := strings.Join(w.Header().Values("Set-Cookie"), "\n")
	assert.Contains(t, cookies, helpers.AccessTokenCookie+"="+fresh)
	assert.Contains(t, cookies, helpers.RefreshTokenCookie+"=refresh-2")
	refresher.AssertExpectations(t)
}

func TestRequiredRefreshFailureClearsCookies(t *testing.T) {
	refresher := &mockRefresher{}
	refresher.On("RefreshToken", mock.Anything, "stale").Return(nil, errors.New("invalid refresh token")).Once()

	r, got := newAuthRouter(t, refresher, true)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: helpers.RefreshTokenCookie, Value: "stale"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, got.identity)
	assert.Contains(t, strings.Join(w.Header().Values("Set-Cookie"), "\n"), "Max-Age=0")
	refresher.AssertExpectations(t)
}

func TestOptionalContinuesWithoutSession(t *testing.T) {
	r, got := newAuthRouter(t, nil, false)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, got.identity)
	assert.Empty(t, got.token)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		id, _ := c.Get("request_id")
		c.String(http.StatusOK, id.(string))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get("X-Request-ID")
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(time.Second))
	var hasDeadline bool
	r.GET("/", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusNoContent)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, hasDeadline)
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler(quietLogger()))
	r.GET("/silent", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	r.GET("/written", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/silent", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "upstream")
}
