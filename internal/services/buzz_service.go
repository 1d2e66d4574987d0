package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/session"
)

const (
	FeedBuzzLimit  = 20
	IndexBuzzLimit = 50
)

type BuzzService struct {
	gw     models.Gateway
	logger *slog.Logger
}

func NewBuzzService(gw models.Gateway, logger *slog.Logger) *BuzzService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuzzService{gw: gw, logger: logger}
}

type PostBuzzInput struct {
	Description string  `json:"description"`
	Visibility  string  `json:"visibility"`
	Location    *string `json:"location"`
}

func (bs *BuzzService) PostBuzz(ctx context.Context, author *session.Identity, in PostBuzzInput) (*models.Buzz, error) {
	if author == nil {
		return nil, models.ErrAuthAbsent
	}
	buzz := &models.Buzz{
		Description: helpers.SanitizeText(in.Description),
		Visibility:  models.Visibility(strings.TrimSpace(in.Visibility)),
		UserID:      author.ID,
	}
	if loc := helpers.StringTrim(in.Location); loc != nil {
		clean := helpers.SanitizeText(*loc)
		buzz.Location = helpers.StringTrim(&clean)
	}
	if buzz.Description == "" {
		return nil, models.Invalidf("buzz cannot be empty")
	}
	if buzz.Visibility == "" {
		buzz.Visibility = models.VisibilityPublic
	}
	if err := models.Validate.Struct(buzz); err != nil {
		return nil, models.Invalid(err)
	}

	rec, err := models.ToRecord(buzz)
	if err != nil {
		return nil, err
	}
	id, err := bs.gw.Create(ctx, models.BuzzCollection, rec)
	if err != nil {
		return nil, err
	}
	bs.logger.Info("buzz posted", "buzz_id", id, "user_id", author.ID, "visibility", buzz.Visibility)

	created, err := bs.gw.GetByID(ctx, models.BuzzCollection, id)
	if err != nil {
		return nil, err
	}
	return models.FromRecord[models.Buzz](created)
}

// ListPublicBuzz returns public buzz newest first, with author usernames
// resolved in one batched lookup.
func (bs *BuzzService) ListPublicBuzz(ctx context.Context, limit int) ([]*models.BuzzView, error) {
	limit = ClampLimit(limit, FeedBuzzLimit)
	recs, err := bs.gw.ListRecent(ctx, models.BuzzCollection, limit, models.Eq("visibility", models.VisibilityPublic))
	if err != nil {
		return nil, err
	}

	out := make([]*models.BuzzView, 0, len(recs))
	authors := make([]string, 0, len(recs))
	for _, rec := range recs {
		buzz, err := models.FromRecord[models.Buzz](rec)
		if err != nil {
			bs.logger.Warn("skipping malformed buzz", "buzz_id", rec.ID(), "error", err)
			continue
		}
		out = append(out, &models.BuzzView{Buzz: buzz})
		authors = append(authors, buzz.UserID)
	}

	names, err := usernames(ctx, bs.gw, authors)
	if err != nil {
		bs.logger.Warn("failed to load buzz authors", "error", err)
		return out, nil
	}
	for _, v := range out {
		v.AuthorUsername = names[v.UserID]
	}
	return out, nil
}
