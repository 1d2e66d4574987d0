package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
	"github.com/joshua-takyi/hiver/internal/session"
)

func currentIdentity(c *gin.Context) *session.Identity {
	v, ok := c.Get(helpers.SessionKey)
	if !ok {
		return nil
	}
	id, _ := v.(*session.Identity)
	return id
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrAuthAbsent):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEmailTaken):
		return http.StatusConflict
	case models.IsWriteError(err), models.IsReadError(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError maps err to a status and JSON body. For rejected writes the
// submitted input is echoed back so the client can resubmit it.
func respondError(c *gin.Context, err error, input interface{}) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		_ = c.Error(err)
		msg = "internal server error"
	case status == http.StatusBadGateway:
		_ = c.Error(err)
	}

	if input != nil && models.IsWriteError(err) {
		c.JSON(status, helpers.ErrorWithData(msg, input))
		return
	}
	c.JSON(status, helpers.ErrorResponse(msg))
}

// listWarning turns a failed list read into an empty list with a warning.
// Other errors are returned for the caller to report.
func listWarning(c *gin.Context, what string, err error) (string, error) {
	if err == nil {
		return "", nil
	}
	if models.IsReadError(err) {
		_ = c.Error(err)
		return "could not load " + what, nil
	}
	return "", err
}

// parseLimit reads ?limit= and returns the value the services will apply.
func parseLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, helpers.ErrorResponse("invalid limit parameter"))
		return 0, false
	}
	return services.ClampLimit(n, def), true
}
