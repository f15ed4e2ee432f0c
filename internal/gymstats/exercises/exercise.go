package exercises

import "time"

// Exercise is a catalog entry owned by a user. Names are unique per user, case-insensitive.
type Exercise struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MuscleGroup string    `json:"muscleGroup,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
