package models

import "time"

type RSVPStatus string

const (
	RSVPGoing      RSVPStatus = "going"
	RSVPInterested RSVPStatus = "interested"
	RSVPNotGoing   RSVPStatus = "not_going"
)

func (s RSVPStatus) Valid() bool {
	switch s {
	case RSVPGoing, RSVPInterested, RSVPNotGoing:
		return true
	}
	return false
}

const (
	FieldHiveID = "hive_id"
	FieldUserID = "user_id"
	FieldStatus = "status"
)

// HiveAttendee is one RSVP record. Whether there is one per (hive, user)
// depends on which write operation the caller picked.
type HiveAttendee struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	HiveID    string     `bson:"hive_id" json:"hive_id" validate:"required"`
	UserID    string     `bson:"user_id" json:"user_id" validate:"required"`
	Status    RSVPStatus `bson:"status" json:"status" validate:"required,oneof=going interested not_going"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt *time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}
