package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
)

func ListBuzz(bs *services.BuzzService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := parseLimit(c, services.FeedBuzzLimit)
		if !ok {
			return
		}
		buzz, err := bs.ListPublicBuzz(c.Request.Context(), limit)
		warning, err := listWarning(c, "buzz", err)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		if buzz == nil {
			buzz = []*models.BuzzView{}
		}
		c.JSON(http.StatusOK, helpers.ListResponse(buzz, limit, len(buzz), warning))
	}
}

func PostBuzz(bs *services.BuzzService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.PostBuzzInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse(err.Error()))
			return
		}
		buzz, err := bs.PostBuzz(c.Request.Context(), currentIdentity(c), input)
		if err != nil {
			respondError(c, err, input)
			return
		}
		c.JSON(http.StatusCreated, helpers.SuccessResponse(buzz, "Buzz posted"))
	}
}
