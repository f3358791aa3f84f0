package auth

import "time"

// User is an account record as listed by the account API.
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone,omitempty"`
	Role       Role       `json:"role"`
	Status     UserStatus `json:"status"`
	IsVerified bool       `json:"is_verified"`
	Picture    string     `json:"picture,omitempty"`
	Address    string     `json:"address,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitzero"`
	UpdatedAt  time.Time  `json:"updated_at,omitzero"`
}

// PageMeta describes one page of a listing.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages,omitempty"`
}

// UserListQuery filters the user listing. Zero values are omitted.
type UserListQuery struct {
	Page       int
	Limit      int
	SearchTerm string
	Status     UserStatus
	Role       Role
}

// UserList is one page of users.
type UserList struct {
	Users []User   `json:"users"`
	Meta  PageMeta `json:"meta"`
}

// ProfileUpdate carries the editable fields of the signed-in user.
// Nil pointers are left unchanged.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Picture  *string `json:"picture,omitempty"`
	Address  *string `json:"address,omitempty"`
	Password *string `json:"password,omitempty"`
}

// Empty reports whether no field is set.
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil &&
		u.Picture == nil && u.Address == nil && u.Password == nil
}

// Registration is a new account request.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OTPPurpose names why a one-time code is sent.
type OTPPurpose string

const (
	OTPVerifyEmail   OTPPurpose = "verify_email"
	OTPResetPassword OTPPurpose = "reset_password"
	OTP2FA           OTPPurpose = "2fa"
)

// PasswordReset completes the forgot-password flow.
type PasswordReset struct {
	ID       string `json:"id"`
	Token    string `json:"token"`
	Password string `json:"password"`
}
