// Command hiver is a terminal client for Hiver. It signs in with
// HIVER_REFRESH_TOKEN or HIVER_EMAIL/HIVER_PASSWORD and talks to Supabase directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/hiver/internal/cli"
	"github.com/joshua-takyi/hiver/internal/config"
	"github.com/joshua-takyi/hiver/internal/connect"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/services"
	"github.com/joshua-takyi/hiver/internal/session"
)

func main() {
	_ = godotenv.Load(".env.local")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			fmt.Fprintln(os.Stderr, "not found")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	client, err := connect.InitSupabase(cfg)
	if err != nil {
		return err
	}
	gw := models.SupabaseNewRepo(client, cfg.SupabaseURL, cfg.SupabaseAnonKey)

	mode, err := services.ParseRSVPMode(cfg.RSVPMode)
	if err != nil {
		return err
	}
	rsvp := services.NewRSVPService(gw, mode, logger)
	profiles := services.NewProfileService(gw, logger)

	provider := session.NewGoTrueProvider(client.Auth)
	token := func() string { return provider.Tokens().AccessToken }
	ensure := profiles.EnsureHook()
	store := session.NewStore(provider, logger, func(ctx context.Context, id *session.Identity) error {
		return ensure(models.ContextWithAccessToken(ctx, token()), id)
	})
	defer store.Close()

	app := &cli.App{
		Provider:     provider,
		Sessions:     store,
		AccessToken:  token,
		Hives:        services.NewHiveService(gw, rsvp, nil, logger),
		RSVP:         rsvp,
		RSVPMode:     mode,
		Buzz:         services.NewBuzzService(gw, logger),
		Profiles:     profiles,
		Email:        os.Getenv("HIVER_EMAIL"),
		Password:     os.Getenv("HIVER_PASSWORD"),
		RefreshToken: os.Getenv("HIVER_REFRESH_TOKEN"),
	}
	return cli.Run(ctx, app, args, os.Stdout)
}
