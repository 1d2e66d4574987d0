package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/session"
)

type ProfileService struct {
	gw     models.Gateway
	logger *slog.Logger
}

func NewProfileService(gw models.Gateway, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{gw: gw, logger: logger}
}

// EnsureProfile creates the identity's profile if it does not exist yet. It
// never overwrites an existing one.
func (ps *ProfileService) EnsureProfile(ctx context.Context, id *session.Identity, displayName string) (bool, error) {
	if id == nil {
		return false, models.ErrAuthAbsent
	}
	name := helpers.SanitizeText(displayName)
	if name == "" {
		name, _, _ = strings.Cut(id.Email, "@")
	}
	at := time.Now().UTC()
	created, err := ps.gw.CreateWithID(ctx, models.ProfilesCollection, id.ID, models.Record{
		"username":            name,
		"display_name":        name,
		"email":               id.Email,
		"bio":                 "",
		models.FieldUpdatedAt: at,
	})
	if err != nil {
		return false, err
	}
	if created {
		ps.logger.Info("profile created", "user_id", id.ID)
	}
	return created, nil
}

// EnsureHook adapts EnsureProfile for the session store.
func (ps *ProfileService) EnsureHook() session.EstablishedHook {
	return func(ctx context.Context, id *session.Identity) error {
		_, err := ps.EnsureProfile(ctx, id, "")
		return err
	}
}

func (ps *ProfileService) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, models.ErrNotFound
	}
	rec, err := ps.gw.GetByID(ctx, models.ProfilesCollection, id)
	if err != nil {
		return nil, err
	}
	return models.FromRecord[models.Profile](rec)
}

// UpdateProfile changes the signed-in user's own profile.
func (ps *ProfileService) UpdateProfile(ctx context.Context, id *session.Identity, in models.ProfileUpdate) (*models.Profile, error) {
	if id == nil {
		return nil, models.ErrAuthAbsent
	}
	if in.Empty() {
		return nil, models.Invalidf("no fields to update")
	}

	fields := models.Record{}
	if in.Username != nil {
		v := helpers.SanitizeText(*in.Username)
		if v == "" {
			return nil, models.Invalidf("username cannot be empty")
		}
		in.Username = &v
		fields["username"] = v
	}
	if in.DisplayName != nil {
		v := helpers.SanitizeText(*in.DisplayName)
		in.DisplayName = &v
		fields["display_name"] = v
	}
	if in.Bio != nil {
		v := helpers.SanitizeText(*in.Bio)
		in.Bio = &v
		fields["bio"] = v
	}
	if err := models.Validate.Struct(in); err != nil {
		return nil, models.Invalid(err)
	}
	fields[models.FieldUpdatedAt] = time.Now().UTC()

	rec, err := ps.gw.Update(ctx, models.ProfilesCollection, id.ID, fields)
	if errors.Is(err, models.ErrNotFound) {
		// profile missing (created before hooks existed); make it, then apply the change
		if _, err := ps.EnsureProfile(ctx, id, ""); err != nil {
			return nil, err
		}
		rec, err = ps.gw.Update(ctx, models.ProfilesCollection, id.ID, fields)
	}
	if err != nil {
		return nil, err
	}
	ps.logger.Info("profile updated", "user_id", id.ID)
	return models.FromRecord[models.Profile](rec)
}

// usernames resolves user ids to usernames with a single batched lookup.
func usernames(ctx context.Context, gw models.Gateway, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(ids) == 0 {
		return out, nil
	}
	recs, err := gw.GetMany(ctx, models.ProfilesCollection, ids)
	if err != nil {
		return nil, err
	}
	for id, rec := range recs {
		name := rec.String("username")
		if name == "" {
			name = rec.String("display_name")
		}
		out[id] = name
	}
	return out, nil
}
