package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/session"
)

type RSVPMode string

const (
	// RSVPModeUpsert keeps one attendee record per (hive, user).
	RSVPModeUpsert RSVPMode = "upsert"
	// RSVPModeAppend writes a new record on every change; the newest wins.
	RSVPModeAppend RSVPMode = "append"
)

func ParseRSVPMode(s string) (RSVPMode, error) {
	switch m := RSVPMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", RSVPModeUpsert:
		return RSVPModeUpsert, nil
	case RSVPModeAppend:
		return RSVPModeAppend, nil
	default:
		return "", fmt.Errorf("unknown RSVP mode %q", s)
	}
}

type RSVPService struct {
	gw     models.Gateway
	mode   RSVPMode
	logger *slog.Logger
}

func NewRSVPService(gw models.Gateway, mode RSVPMode, logger *slog.Logger) *RSVPService {
	if mode == "" {
		mode = RSVPModeUpsert
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RSVPService{gw: gw, mode: mode, logger: logger}
}

func (rs *RSVPService) check(ctx context.Context, user *session.Identity, hiveID string, status models.RSVPStatus) error {
	if user == nil {
		return models.ErrAuthAbsent
	}
	if !status.Valid() {
		return models.Invalidf("status must be one of going, interested, not_going")
	}
	if strings.TrimSpace(hiveID) == "" {
		return models.ErrNotFound
	}
	rec, err := rs.gw.GetByID(ctx, models.HivesCollection, hiveID)
	if err != nil {
		return err
	}
	hive, err := models.FromRecord[models.Hive](rec)
	if err != nil {
		return err
	}
	// a hive the user cannot see cannot be RSVPed to
	if !hive.VisibleTo(user.ID) {
		return models.ErrNotFound
	}
	return nil
}

// RSVP records the user's status using the configured mode.
func (rs *RSVPService) RSVP(ctx context.Context, user *session.Identity, hiveID string, status models.RSVPStatus) (*models.HiveAttendee, error) {
	if rs.mode == RSVPModeAppend {
		return rs.AppendRSVP(ctx, user, hiveID, status)
	}
	return rs.UpsertRSVP(ctx, user, hiveID, status)
}

// UpsertRSVP replaces the user's status for the hive, creating the record on first RSVP.
func (rs *RSVPService) UpsertRSVP(ctx context.Context, user *session.Identity, hiveID string, status models.RSVPStatus) (*models.HiveAttendee, error) {
	if err := rs.check(ctx, user, hiveID, status); err != nil {
		return nil, err
	}
	key := models.Record{models.FieldHiveID: hiveID, models.FieldUserID: user.ID}
	fields := models.Record{
		models.FieldStatus:    string(status),
		models.FieldUpdatedAt: time.Now().UTC(),
	}
	id, created, err := rs.gw.Upsert(ctx, models.AttendeesCollection, key, fields)
	if err != nil {
		return nil, err
	}
	rs.logger.Info("rsvp saved", "hive_id", hiveID, "user_id", user.ID, "status", status, "created", created)
	return rs.load(ctx, id)
}

// AppendRSVP adds a new attendee record. Status lookups read the newest one.
func (rs *RSVPService) AppendRSVP(ctx context.Context, user *session.Identity, hiveID string, status models.RSVPStatus) (*models.HiveAttendee, error) {
	if err := rs.check(ctx, user, hiveID, status); err != nil {
		return nil, err
	}
	id, err := rs.gw.Create(ctx, models.AttendeesCollection, models.Record{
		models.FieldHiveID: hiveID,
		models.FieldUserID: user.ID,
		models.FieldStatus: string(status),
	})
	if err != nil {
		return nil, err
	}
	rs.logger.Info("rsvp appended", "hive_id", hiveID, "user_id", user.ID, "status", status)
	return rs.load(ctx, id)
}

func (rs *RSVPService) load(ctx context.Context, id string) (*models.HiveAttendee, error) {
	rec, err := rs.gw.GetByID(ctx, models.AttendeesCollection, id)
	if err != nil {
		return nil, err
	}
	return models.FromRecord[models.HiveAttendee](rec)
}

// AttendeeCount counts attendee records for the hive, whatever their status.
func (rs *RSVPService) AttendeeCount(ctx context.Context, hiveID string) (int64, error) {
	return rs.gw.CountWhere(ctx, models.AttendeesCollection, models.FieldHiveID, hiveID)
}

// StatusFor returns the user's newest status for the hive, or "" if none.
func (rs *RSVPService) StatusFor(ctx context.Context, hiveID, userID string) (models.RSVPStatus, error) {
	if userID == "" {
		return "", nil
	}
	rec, err := rs.gw.FindOne(ctx, models.AttendeesCollection, models.Record{
		models.FieldHiveID: hiveID,
		models.FieldUserID: userID,
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return models.RSVPStatus(rec.String(models.FieldStatus)), nil
}
