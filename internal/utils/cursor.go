package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// CourseCursor is the opaque pagination token for the course catalogue,
// keyed on (createdAt, id) to match the listing order.
type CourseCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func EncodeCourseCursor(createdAt time.Time, id string) (string, error) {
	b, err := json.Marshal(CourseCursor{CreatedAt: createdAt, ID: id})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCourseCursor(cursor string) (CourseCursor, error) {
	if cursor == "" {
		return CourseCursor{}, errors.New("empty cursor")
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return CourseCursor{}, err
	}

	var c CourseCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return CourseCursor{}, err
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return CourseCursor{}, errors.New("invalid cursor payload")
	}
	return c, nil
}
