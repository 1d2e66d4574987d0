package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
)

func CreateHive(hs *services.HiveService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.CreateHiveInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse(err.Error()))
			return
		}

		hive, err := hs.CreateHive(c.Request.Context(), currentIdentity(c), input)
		if err != nil {
			respondError(c, err, input)
			return
		}
		c.JSON(http.StatusCreated, helpers.SuccessResponse(hive, "Hive created successfully"))
	}
}

func ListHives(hs *services.HiveService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := parseLimit(c, services.DefaultHiveLimit)
		if !ok {
			return
		}
		hives, err := hs.ListHives(c.Request.Context(), limit)
		warning, err := listWarning(c, "hives", err)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		if hives == nil {
			hives = []*models.HiveView{}
		}
		c.JSON(http.StatusOK, helpers.ListResponse(hives, limit, len(hives), warning))
	}
}

func Discover(hs *services.HiveService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := parseLimit(c, services.DefaultHiveLimit)
		if !ok {
			return
		}
		hives, err := hs.Discover(c.Request.Context(), c.Query("category"), limit)
		warning, err := listWarning(c, "hives", err)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		if hives == nil {
			hives = []*models.HiveView{}
		}
		c.JSON(http.StatusOK, helpers.ListResponse(hives, limit, len(hives), warning))
	}
}

func GetHive(hs *services.HiveService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("hive ID is required"))
			return
		}
		hive, err := hs.GetHiveDetail(c.Request.Context(), id, currentIdentity(c))
		if err != nil {
			respondError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(hive, ""))
	}
}

type rsvpRequest struct {
	Status models.RSVPStatus `json:"status" binding:"required"`
}

// RSVP records the caller's status and answers with the refreshed hive detail.
func RSVP(hs *services.HiveService, rs *services.RSVPService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		var req rsvpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse(err.Error()))
			return
		}

		viewer := currentIdentity(c)
		if _, err := rs.RSVP(c.Request.Context(), viewer, id, req.Status); err != nil {
			respondError(c, err, req)
			return
		}
		hive, err := hs.GetHiveDetail(c.Request.Context(), id, viewer)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(hive, "RSVP updated"))
	}
}
