package store

import "time"

type User struct {
	ID          string
	GoogleID    string
	DisplayName string
	AvatarURL   string
	Email       string
	CreatedAt   time.Time
}

type Todo struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Completed   bool
	CreatedAt   time.Time
}

// TodoPatch carries the fields present in a partial update. Nil means the
// field was omitted and the stored value is left untouched.
type TodoPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}
