package models

import (
	"time"
)

// Profile is the per-identity user document. Its id is the auth identity id.
type Profile struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Username    string    `bson:"username" json:"username" validate:"max=40"`
	DisplayName string    `bson:"display_name" json:"display_name" validate:"max=80"`
	Email       string    `bson:"email" json:"email" validate:"omitempty,email"`
	Bio         string    `bson:"bio" json:"bio" validate:"max=500"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// ProfileUpdate carries the fields the owning user may change.
// Nil means "leave as is".
type ProfileUpdate struct {
	Username    *string `json:"username" validate:"omitempty,max=40"`
	DisplayName *string `json:"display_name" validate:"omitempty,max=80"`
	Bio         *string `json:"bio" validate:"omitempty,max=500"`
}

func (u ProfileUpdate) Empty() bool {
	return u.Username == nil && u.DisplayName == nil && u.Bio == nil
}
