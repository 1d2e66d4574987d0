package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
)

func SignUp(as *services.AuthService, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.SignUpInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "message": "invalid request payload"})
			return
		}

		res, err := as.SignUp(c.Request.Context(), input)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		if res.Token == nil {
			c.JSON(http.StatusCreated, helpers.SuccessResponse(gin.H{"user": res.Identity}, "Check your email to confirm your account"))
			return
		}
		helpers.SetAuthCookies(c, res.Token, secureCookies)
		c.JSON(http.StatusCreated, helpers.SuccessResponse(gin.H{"user": res.Identity}, "Account created"))
	}
}

func Login(as *services.AuthService, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "message": "invalid request payload"})
			return
		}

		res, err := as.Login(c.Request.Context(), req.Email, req.Password)
		if errors.Is(err, models.ErrInvalidInput) {
			respondError(c, err, nil)
			return
		}
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "message": "invalid email or password"})
			return
		}

		// tokens travel in cookies only
		helpers.SetAuthCookies(c, res.Token, secureCookies)
		c.JSON(http.StatusOK, helpers.SuccessResponse(gin.H{"user": res.Identity}, "Signed in"))
	}
}

func Logout(as *services.AuthService, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(helpers.AccessTokenCookie)
		if err := as.Logout(c.Request.Context(), token); err != nil {
			_ = c.Error(err)
		}
		helpers.ClearAuthCookies(c, secureCookies)
		c.JSON(http.StatusOK, helpers.SuccessResponse(nil, "Signed out"))
	}
}

// Session reports the caller's identity, or null when signed out.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, helpers.SuccessResponse(gin.H{"user": currentIdentity(c)}, ""))
	}
}
