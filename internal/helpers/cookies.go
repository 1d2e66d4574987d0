package helpers

import (
	"github.com/gin-gonic/gin"
	"github.com/supabase-community/gotrue-go/types"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	// SessionKey is where the resolved *session.Identity lives on the gin context.
	SessionKey = "session"

	refreshTokenMaxAge = 3600 * 24 * 30
)

// SetAuthCookies stores the token pair in http-only cookies.
func SetAuthCookies(c *gin.Context, token *types.TokenResponse, secure bool) {
	c.SetCookie(AccessTokenCookie, token.AccessToken, token.ExpiresIn, "/", "", secure, true)
	c.SetCookie(RefreshTokenCookie, token.RefreshToken, refreshTokenMaxAge, "/", "", secure, true)
}

func ClearAuthCookies(c *gin.Context, secure bool) {
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", secure, true)
}
