package domain

import "time"

// User models a registered identity. Users are never deleted, only deactivated.
type User struct {
	ID          int64     `json:"id" bson:"_id"`
	Identity    string    `json:"identity" bson:"identity"`
	DisplayName string    `json:"display_name" bson:"display_name"`
	Contact     string    `json:"contact" bson:"contact"`
	Role        Role      `json:"role" bson:"role"`
	IsActive    bool      `json:"is_active" bson:"is_active"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// Can reports whether the user is active and holds at least min.
func (u *User) Can(min Role) bool {
	return u != nil && u.IsActive && u.Role.AtLeast(min)
}
