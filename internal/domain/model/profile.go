package model

import (
	"time"

	"github.com/ivankudzin/amour/internal/domain/enums"
)

type Photo struct {
	ObjectKey string `json:"-" db:"object_key"`
	URL       string `json:"url" db:"-"`
	Position  int    `json:"position" db:"position"`
}

// Profile is read-only from this service; editing lives elsewhere.
type Profile struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Age         int       `json:"age"`
	Sex         enums.Sex `json:"sex"`
	Bio         string    `json:"bio"`
	Photos      []Photo   `json:"photos"`
	UpdatedAt   time.Time `json:"updated_at"`
}
