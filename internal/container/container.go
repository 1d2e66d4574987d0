package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joshua-takyi/hiver/internal/config"
	"github.com/joshua-takyi/hiver/internal/handlers"
	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/middleware"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
	"github.com/supabase-community/supabase-go"
	"go.mongodb.org/mongo-driver/mongo"
)

// Clients are the external connections the container builds on. Any of them
// may be nil when the configured backend does not need it.
type Clients struct {
	Supabase   *supabase.Client
	MongoDB    *mongo.Client
	SQLite     *models.SQLiteRepo
	Cloudinary *cloudinary.Cloudinary
}

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Gateway models.Gateway
	Store   handlers.Pinger

	Validator     *helpers.TokenValidator
	Authenticator *middleware.Authenticator

	AuthService    *services.AuthService
	HiveService    *services.HiveService
	RSVPService    *services.RSVPService
	BuzzService    *services.BuzzService
	ProfileService *services.ProfileService
}

func gateway(ctx context.Context, cfg *config.Config, clients Clients, supa *models.SupabaseRepo, mode services.RSVPMode) (models.Gateway, handlers.Pinger, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		mem := models.NewMemoryRepo()
		return mem, mem, nil
	case config.BackendMongo:
		if clients.MongoDB == nil {
			return nil, nil, fmt.Errorf("mongo backend selected without a MongoDB client")
		}
		repo := models.MongodbNewRepo(clients.MongoDB, cfg.MongoDBDatabase)
		if err := repo.EnsureIndexes(ctx, mode == services.RSVPModeUpsert); err != nil {
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return repo, repo, nil
	case config.BackendSQLite:
		if clients.SQLite == nil {
			return nil, nil, fmt.Errorf("sqlite backend selected without a database")
		}
		return clients.SQLite, clients.SQLite, nil
	default:
		return supa, nil, nil
	}
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, clients Clients) (*Container, error) {
	if clients.Supabase == nil {
		return nil, fmt.Errorf("supabase client is required")
	}
	supa := models.SupabaseNewRepo(clients.Supabase, cfg.SupabaseURL, cfg.SupabaseAnonKey)

	mode, err := services.ParseRSVPMode(cfg.RSVPMode)
	if err != nil {
		return nil, err
	}

	gw, store, err := gateway(ctx, cfg, clients, supa, mode)
	if err != nil {
		return nil, err
	}

	var uploader helpers.ImageUploader
	if clients.Cloudinary != nil {
		uploader = helpers.NewCloudinaryUploader(clients.Cloudinary)
	}

	validator, err := helpers.NewTokenValidator(ctx, cfg.SupabaseURL, cfg.SupabaseJWTSecret)
	if err != nil {
		return nil, fmt.Errorf("token validator: %w", err)
	}

	rsvp := services.NewRSVPService(gw, mode, logger)
	profiles := services.NewProfileService(gw, logger)
	auth := services.NewAuthService(supa, profiles, logger)

	return &Container{
		Config:         cfg,
		Logger:         logger,
		Gateway:        gw,
		Store:          store,
		Validator:      validator,
		Authenticator:  middleware.NewAuthenticator(validator, auth, logger, cfg.IsProduction()),
		AuthService:    auth,
		HiveService:    services.NewHiveService(gw, rsvp, uploader, logger),
		RSVPService:    rsvp,
		BuzzService:    services.NewBuzzService(gw, logger),
		ProfileService: profiles,
	}, nil
}

func (c *Container) Close() {
	if c.Validator != nil {
		c.Validator.Close()
	}
}
