package models

import "time"

type User struct {
	ID string `json:"id"`
}

// MapPosition is a point on a map image, in percent of its width and height.
type MapPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates are within 0..100.
func (p MapPosition) Valid() bool {
	return p.X >= 0 && p.X <= 100 && p.Y >= 0 && p.Y <= 100
}

// DeathRecord is the last known death of a monster for a user.
type DeathRecord struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id,omitempty"`
	MvpID       string       `json:"mvp_id"`
	DeathTime   time.Time    `json:"death_time"`
	MapPosition *MapPosition `json:"map_position,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Account is a locally managed login.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
