package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/hiver/internal/container"
	"github.com/joshua-takyi/hiver/internal/handlers"
	"github.com/joshua-takyi/hiver/internal/middleware"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	cfg := container.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	auth := container.Authenticator
	secure := cfg.IsProduction()

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", handlers.Health(cfg.StoreBackend, container.Store))

		v1.POST("/signup", handlers.SignUp(container.AuthService, secure))
		v1.POST("/login", handlers.Login(container.AuthService, secure))
		v1.POST("/logout", handlers.Logout(container.AuthService, secure))
		v1.GET("/session", auth.Optional(), handlers.Session())

		v1.GET("/home", handlers.Home(container.HiveService, container.BuzzService))
		v1.GET("/discover", handlers.Discover(container.HiveService))
	}

	hiveRoutes := v1.Group("/hives")
	{
		hiveRoutes.GET("", handlers.ListHives(container.HiveService))
		hiveRoutes.POST("", auth.Required(), handlers.CreateHive(container.HiveService))
		hiveRoutes.GET("/:id", auth.Optional(), handlers.GetHive(container.HiveService))
		hiveRoutes.POST("/:id/rsvp", auth.Required(), handlers.RSVP(container.HiveService, container.RSVPService))
	}

	buzzRoutes := v1.Group("/buzz")
	{
		buzzRoutes.GET("", handlers.ListBuzz(container.BuzzService))
		buzzRoutes.POST("", auth.Required(), handlers.PostBuzz(container.BuzzService))
	}

	protected := v1.Group("/")
	protected.Use(auth.Required())
	{
		protected.GET("/profile", handlers.GetMyProfile(container.ProfileService))
		protected.PATCH("/profile", handlers.UpdateMyProfile(container.ProfileService))
	}

	v1.GET("/users/:id", auth.Optional(), handlers.GetUserProfile(container.ProfileService))

	return r
}
