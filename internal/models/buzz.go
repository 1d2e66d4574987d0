package models

import "time"

type Buzz struct {
	ID          string     `bson:"_id,omitempty" json:"id,omitempty"`
	Description string     `bson:"description" json:"description" validate:"required,max=500"`
	Visibility  Visibility `bson:"visibility" json:"visibility" validate:"required,oneof=public private connections"`
	UserID      string     `bson:"user_id" json:"user_id" validate:"required"`
	Location    *string    `bson:"location" json:"location"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
}

type BuzzView struct {
	*Buzz
	AuthorUsername string `json:"author_username"`
}
