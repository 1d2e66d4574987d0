package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
)

// GetMyProfile returns the signed-in user's profile.
func GetMyProfile(ps *services.ProfileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := currentIdentity(c)
		if id == nil {
			respondError(c, models.ErrAuthAbsent, nil)
			return
		}
		profile, err := ps.GetProfile(c.Request.Context(), id.ID)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(profile, ""))
	}
}

func UpdateMyProfile(ps *services.ProfileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.ProfileUpdate
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse(err.Error()))
			return
		}
		profile, err := ps.UpdateProfile(c.Request.Context(), currentIdentity(c), input)
		if err != nil {
			respondError(c, err, input)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(profile, "Profile updated successfully"))
	}
}

func GetUserProfile(ps *services.ProfileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("user ID is required"))
			return
		}
		profile, err := ps.GetProfile(c.Request.Context(), id)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		// email stays private to its owner
		if viewer := currentIdentity(c); viewer == nil || viewer.ID != profile.ID {
			profile.Email = ""
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(profile, ""))
	}
}
