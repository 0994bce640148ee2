package user

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

// User is the minimal identity the notification subsystem needs: a
// stable ID and a delivery address. Authentication and the rest of the
// user model live elsewhere.
type User struct {
	ID    int64
	Email string
	Name  string
	Added time.Time
}
