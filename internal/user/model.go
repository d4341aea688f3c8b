package user

import "time"

const (
	RoleStudent = "student"
	RoleAlumni  = "alumni"
	RoleAdmin   = "admin"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
