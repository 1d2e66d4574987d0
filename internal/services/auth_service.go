package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/session"
	"github.com/supabase-community/gotrue-go/types"
)

type AuthService struct {
	authRepo models.AuthRepo
	profiles *ProfileService
	logger   *slog.Logger
}

func NewAuthService(authRepo models.AuthRepo, profiles *ProfileService, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{authRepo: authRepo, profiles: profiles, logger: logger}
}

// AuthResult is a signed-in identity with its tokens. Token is nil after a
// signup that still waits for email confirmation.
type AuthResult struct {
	Identity *session.Identity
	Token    *types.TokenResponse
}

type SignUpInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required,max=80"`
}

// establish runs the once-per-session work for a fresh identity.
func (as *AuthService) establish(ctx context.Context, token *types.TokenResponse, displayName string) *session.Identity {
	id := &session.Identity{ID: token.User.ID.String(), Email: token.User.Email}
	if displayName == "" {
		displayName = helpers.MetadataName(token.User.UserMetadata)
	}
	ctx = models.ContextWithAccessToken(ctx, token.AccessToken)
	if _, err := as.profiles.EnsureProfile(ctx, id, displayName); err != nil {
		// sign-in still succeeds; the next establishment retries
		as.logger.Error("failed to ensure profile", "user_id", id.ID, "error", err)
	}
	return id
}

func (as *AuthService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.DisplayName = helpers.SanitizeText(in.DisplayName)
	if err := models.Validate.Struct(in); err != nil {
		return nil, models.Invalid(err)
	}
	if !helpers.IsPasswordStrong(in.Password) {
		return nil, models.Invalidf("password is not strong enough")
	}

	res, err := as.authRepo.SignUp(ctx, in.Email, in.Password, in.DisplayName)
	if err != nil {
		return nil, err
	}
	if res.AccessToken == "" {
		as.logger.Info("signup pending confirmation", "email", in.Email)
		return &AuthResult{Identity: &session.Identity{ID: res.User.ID.String(), Email: res.User.Email}}, nil
	}
	token := &types.TokenResponse{Session: res.Session}
	return &AuthResult{Identity: as.establish(ctx, token, in.DisplayName), Token: token}, nil
}

func (as *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if err := models.Validate.Var(email, "required,email"); err != nil {
		return nil, models.Invalidf("invalid email format")
	}
	if err := models.Validate.Var(password, "required,min=8"); err != nil {
		return nil, models.Invalidf("invalid password format")
	}
	token, err := as.authRepo.SignIn(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("invalid token response")
	}
	return &AuthResult{Identity: as.establish(ctx, token, ""), Token: token}, nil
}

func (as *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*types.TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	token, err := as.authRepo.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("invalid refresh response")
	}
	return token, nil
}

func (as *AuthService) Logout(ctx context.Context, accessToken string) error {
	return as.authRepo.SignOut(ctx, accessToken)
}
