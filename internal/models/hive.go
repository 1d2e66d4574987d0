package models

import (
	"time"
)

type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityPrivate     Visibility = "private"
	VisibilityConnections Visibility = "connections"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityConnections:
		return true
	}
	return false
}

const (
	RecurringOneTime = "one-time"
	RecurringDaily   = "daily"
	RecurringWeekly  = "weekly"
	RecurringMonthly = "monthly"
)

type Hive struct {
	ID            string     `bson:"_id,omitempty" json:"id,omitempty"`
	Name          string     `bson:"name" json:"name" validate:"required,max=120"`
	Description   string     `bson:"description" json:"description" validate:"required,max=5000"`
	Location      string     `bson:"location" json:"location" validate:"required,max=300"`
	Date          time.Time  `bson:"date" json:"date" validate:"required"`
	Category      string     `bson:"category" json:"category" validate:"required,max=60"`
	Visibility    Visibility `bson:"visibility" json:"visibility" validate:"required,oneof=public private connections"`
	CoverImageURL *string    `bson:"cover_image_url" json:"cover_image_url" validate:"omitempty,url"`
	ExternalLink  *string    `bson:"external_link" json:"external_link" validate:"omitempty,url"`
	Recurring     string     `bson:"recurring" json:"recurring" validate:"required,oneof=one-time daily weekly monthly"`
	HostID        string     `bson:"host_id" json:"host_id" validate:"required"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
}

// HiveView is a hive enriched for listing and detail pages.
type HiveView struct {
	*Hive
	HostUsername  string `json:"host_username,omitempty"`
	AttendeeCount int64  `json:"attendee_count"`
	ViewerStatus  string `json:"viewer_status,omitempty"`
}

// VisibleTo reports whether viewerID may see the hive. Private hives are
// visible to their host only; viewerID is "" for anonymous callers.
func (h *Hive) VisibleTo(viewerID string) bool {
	if h.Visibility != VisibilityPrivate {
		return true
	}
	return viewerID != "" && viewerID == h.HostID
}
