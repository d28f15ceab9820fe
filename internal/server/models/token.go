package models

import "time"

// Token is the single live session of a user.
type Token struct {
	Token     string
	CreatedAt time.Time
	Deadline  time.Time
	CreatedBy int64
}

// ValidAt reports whether the token is still usable at now.
func (t *Token) ValidAt(now time.Time) bool {
	return now.Before(t.Deadline)
}
