package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/hiver/internal/helpers"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/session"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultHiveLimit = 20
	MaxListLimit     = 100

	// first read size multiplier for Discover; doubled until enough public
	// hives are found or the store runs out
	discoverWindow = 3
)

type HiveService struct {
	gw       models.Gateway
	rsvp     *RSVPService
	uploader helpers.ImageUploader
	logger   *slog.Logger
}

// NewHiveService builds the service. uploader may be nil, in which case only
// hosted cover image URLs are accepted.
func NewHiveService(gw models.Gateway, rsvp *RSVPService, uploader helpers.ImageUploader, logger *slog.Logger) *HiveService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HiveService{gw: gw, rsvp: rsvp, uploader: uploader, logger: logger}
}

// CreateHiveInput is what the create form submits. Date is either a full
// RFC3339 instant or YYYY-MM-DD, with Time (HH:MM) optional in the latter case.
type CreateHiveInput struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Location     string  `json:"location"`
	Date         string  `json:"date"`
	Time         string  `json:"time"`
	Category     string  `json:"category"`
	Visibility   string  `json:"visibility"`
	CoverImage   *string `json:"cover_image_url"`
	ExternalLink *string `json:"external_link"`
	Recurring    string  `json:"recurring"`
}

func parseWhen(date, clock string) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" {
		return time.Time{}, models.Invalidf("date is required")
	}
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.UTC(), nil
	}
	if clock == "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return time.Time{}, models.Invalidf("date must be YYYY-MM-DD")
		}
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02 15:04", date+" "+clock)
	if err != nil {
		return time.Time{}, models.Invalidf("date and time must be YYYY-MM-DD and HH:MM")
	}
	return t.UTC(), nil
}

func (hs *HiveService) coverURL(ctx context.Context, raw *string) (*string, error) {
	cover := helpers.StringTrim(raw)
	if cover == nil || !helpers.IsDataURI(*cover) {
		return cover, nil
	}
	if hs.uploader == nil {
		return nil, models.Invalidf("cover image uploads are not configured; use an image URL")
	}
	url, err := hs.uploader.Upload(ctx, *cover, helpers.CoversFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to upload cover image: %w", err)
	}
	return &url, nil
}

func (hs *HiveService) CreateHive(ctx context.Context, host *session.Identity, in CreateHiveInput) (*models.Hive, error) {
	if host == nil {
		return nil, models.ErrAuthAbsent
	}
	when, err := parseWhen(in.Date, in.Time)
	if err != nil {
		return nil, err
	}

	hive := &models.Hive{
		Name:         helpers.SanitizeText(in.Name),
		Description:  helpers.SanitizeText(in.Description),
		Location:     helpers.SanitizeText(in.Location),
		Date:         when,
		Category:     strings.ToLower(helpers.SanitizeText(in.Category)),
		Visibility:   models.Visibility(strings.TrimSpace(in.Visibility)),
		ExternalLink: helpers.StringTrim(in.ExternalLink),
		Recurring:    strings.TrimSpace(in.Recurring),
		HostID:       host.ID,
	}
	if hive.Visibility == "" {
		hive.Visibility = models.VisibilityPublic
	}
	if hive.Recurring == "" {
		hive.Recurring = models.RecurringOneTime
	}
	if err := models.Validate.Struct(hive); err != nil {
		return nil, models.Invalid(err)
	}

	hive.CoverImageURL, err = hs.coverURL(ctx, in.CoverImage)
	if err != nil {
		return nil, err
	}
	if hive.CoverImageURL != nil && !helpers.IsDataURI(*hive.CoverImageURL) {
		if err := models.Validate.Var(*hive.CoverImageURL, "url"); err != nil {
			return nil, models.Invalidf("cover_image_url must be a URL")
		}
	}

	rec, err := models.ToRecord(hive)
	if err != nil {
		return nil, err
	}
	id, err := hs.gw.Create(ctx, models.HivesCollection, rec)
	if err != nil {
		return nil, err
	}
	hs.logger.Info("hive created", "hive_id", id, "host_id", host.ID)

	created, err := hs.gw.GetByID(ctx, models.HivesCollection, id)
	if err != nil {
		return nil, err
	}
	return models.FromRecord[models.Hive](created)
}

// ClampLimit applies the default for non-positive limits and caps at MaxListLimit.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func (hs *HiveService) decodeHives(recs []models.Record) []*models.HiveView {
	out := make([]*models.HiveView, 0, len(recs))
	for _, rec := range recs {
		hive, err := models.FromRecord[models.Hive](rec)
		if err != nil {
			hs.logger.Warn("skipping malformed hive", "hive_id", rec.ID(), "error", err)
			continue
		}
		out = append(out, &models.HiveView{Hive: hive})
	}
	return out
}

// enrichHosts fills host usernames with one batched profile lookup.
// A failed lookup leaves the names empty.
func (hs *HiveService) enrichHosts(ctx context.Context, views []*models.HiveView) {
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.HostID)
	}
	names, err := usernames(ctx, hs.gw, ids)
	if err != nil {
		hs.logger.Warn("failed to load host profiles", "error", err)
		return
	}
	for _, v := range views {
		v.HostUsername = names[v.HostID]
	}
}

// ListHives returns public hives, newest first.
func (hs *HiveService) ListHives(ctx context.Context, limit int) ([]*models.HiveView, error) {
	limit = ClampLimit(limit, DefaultHiveLimit)
	recs, err := hs.gw.ListRecent(ctx, models.HivesCollection, limit, models.Eq("visibility", models.VisibilityPublic))
	if err != nil {
		return nil, err
	}
	views := hs.decodeHives(recs)
	hs.enrichHosts(ctx, views)
	return views, nil
}

// Discover lists public hives of one category. An empty category lists all public hives.
func (hs *HiveService) Discover(ctx context.Context, category string, limit int) ([]*models.HiveView, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return hs.ListHives(ctx, limit)
	}
	limit = ClampLimit(limit, DefaultHiveLimit)

	views := make([]*models.HiveView, 0, limit)
	for window := limit * discoverWindow; ; window *= 2 {
		recs, err := hs.gw.ListRecent(ctx, models.HivesCollection, window, models.Eq("category", category))
		if err != nil {
			return nil, err
		}
		views = views[:0]
		for _, v := range hs.decodeHives(recs) {
			if v.Visibility != models.VisibilityPublic {
				continue
			}
			views = append(views, v)
			if len(views) == limit {
				break
			}
		}
		if len(views) == limit || len(recs) < window {
			break
		}
	}
	hs.enrichHosts(ctx, views)
	return views, nil
}

// GetHiveDetail loads a hive, then its attendee count and, for a signed-in
// viewer, the viewer's RSVP status. Private hives are only shown to their host.
func (hs *HiveService) GetHiveDetail(ctx context.Context, id string, viewer *session.Identity) (*models.HiveView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, models.ErrNotFound
	}
	rec, err := hs.gw.GetByID(ctx, models.HivesCollection, id)
	if err != nil {
		return nil, err
	}
	hive, err := models.FromRecord[models.Hive](rec)
	if err != nil {
		return nil, err
	}
	viewerID := ""
	if viewer != nil {
		viewerID = viewer.ID
	}
	if !hive.VisibleTo(viewerID) {
		return nil, models.ErrNotFound
	}

	var (
		count  int64
		status models.RSVPStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		count, err = hs.rsvp.AttendeeCount(gctx, id)
		return err
	})
	if viewerID != "" {
		g.Go(func() error {
			var err error
			status, err = hs.rsvp.StatusFor(gctx, id, viewerID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &models.HiveView{Hive: hive, AttendeeCount: count, ViewerStatus: string(status)}
	hs.enrichHosts(ctx, []*models.HiveView{view})
	return view, nil
}
