package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
	"golang.org/x/sync/errgroup"
)

type homePage struct {
	Hives    []*models.HiveView `json:"hives"`
	Buzz     []*models.BuzzView `json:"buzz"`
	Warnings []string           `json:"warnings,omitempty"`
}

// Home loads the landing page: recent public hives and buzz. Either list
// degrades to empty on its own if it fails to load.
func Home(hs *services.HiveService, bs *services.BuzzService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			page             homePage
			hiveErr, buzzErr error
		)
		var g errgroup.Group
		g.Go(func() error {
			page.Hives, hiveErr = hs.ListHives(c.Request.Context(), services.DefaultHiveLimit)
			return nil
		})
		g.Go(func() error {
			page.Buzz, buzzErr = bs.ListPublicBuzz(c.Request.Context(), services.IndexBuzzLimit)
			return nil
		})
		_ = g.Wait()

		for _, part := range []struct {
			what string
			err  error
		}{{"hives", hiveErr}, {"buzz", buzzErr}} {
			warning, err := listWarning(c, part.what, part.err)
			if err != nil {
				respondError(c, err, nil)
				return
			}
			if warning != "" {
				page.Warnings = append(page.Warnings, warning)
			}
		}
		if page.Hives == nil {
			page.Hives = []*models.HiveView{}
		}
		if page.Buzz == nil {
			page.Buzz = []*models.BuzzView{}
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(page, ""))
	}
}
