package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/session"
	"github.com/supabase-community/gotrue-go/types"
)

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger provides structured logging middleware
func StructuredLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		requestID, _ := c.Get("request_id")
		attrs := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if id, ok := c.Get(helpers.SessionKey); ok {
			if ident, ok := id.(*session.Identity); ok && ident != nil {
				attrs = append(attrs, "user_id", ident.ID)
			}
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("HTTP Request", attrs...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("HTTP Request", attrs...)
		default:
			logger.Info("HTTP Request", attrs...)
		}
	}
}

// ErrorHandler logs errors handlers attached with c.Error and answers with a
// generic 500 when the handler wrote nothing itself.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		requestID, _ := c.Get("request_id")
		for _, err := range c.Errors {
			logger.Error("Request error",
				"request_id", requestID,
				"error", err.Error(),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
		}
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":      "Internal server error",
				"request_id": requestID,
			})
		}
	}
}

// Timeout bounds the request context. Gateways observe it on every call.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type TokenValidator interface {
	Validate(token string) (*helpers.CustomClaims, error)
}

type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*types.TokenResponse, error)
}

// Authenticator resolves the caller's session from cookies or a bearer token,
// refreshing an expired access token when a refresh token cookie is present.
type Authenticator struct {
	validator     TokenValidator
	refresher     TokenRefresher
	logger        *slog.Logger
	secureCookies bool
}

func NewAuthenticator(validator TokenValidator, refresher TokenRefresher, logger *slog.Logger, secureCookies bool) *Authenticator {
	return &Authenticator{
		validator:     validator,
		refresher:     refresher,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

func accessToken(c *gin.Context) string {
	if token, err := c.Cookie(helpers.AccessTokenCookie); err == nil && token != "" {
		return token
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// resolve returns the caller's identity, or nil when there is no usable session.
func (a *Authenticator) resolve(c *gin.Context) (*session.Identity, string) {
	token := accessToken(c)
	var (
		claims *helpers.CustomClaims
		err    error
	)
	if token != "" {
		claims, err = a.validator.Validate(token)
	}
	if token == "" || err != nil {
		refreshToken, cookieErr := c.Cookie(helpers.RefreshTokenCookie)
		if cookieErr != nil || refreshToken == "" || a.refresher == nil {
			return nil, ""
		}
		res, refreshErr := a.refresher.RefreshToken(c.Request.Context(), refreshToken)
		if refreshErr != nil {
			a.logger.Warn("Token refresh failed", "error", refreshErr)
			helpers.ClearAuthCookies(c, a.secureCookies)
			return nil, ""
		}
		helpers.SetAuthCookies(c, res, a.secureCookies)
		a.logger.Info("Token refreshed successfully",
			"user_id", res.User.ID.String(),
			"expires_in", res.ExpiresIn,
		)
		token = res.AccessToken
		claims, err = a.validator.Validate(token)
		if err != nil {
			a.logger.Warn("Refreshed token validation failed", "error", err)
			return nil, ""
		}
	}
	return &session.Identity{ID: claims.Subject, Email: claims.Email}, token
}

func (a *Authenticator) attach(c *gin.Context, id *session.Identity, token string) {
	c.Set(helpers.SessionKey, id)
	c.Request = c.Request.WithContext(models.ContextWithAccessToken(c.Request.Context(), token))
}

// Required rejects requests without a session with 401.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, token := a.resolve(c)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, helpers.ErrorResponse(models.ErrAuthAbsent.Error()))
			return
		}
		a.attach(c, id, token)
		c.Next()
	}
}

// Optional attaches a session when there is one and continues either way.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, token := a.resolve(c); id != nil {
			a.attach(c, id, token)
		}
		c.Next()
	}
}
