package api

// TokenPair holds an access and refresh token pair as issued by the auth
// service. The two tokens belong together and are persisted together.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// User is the identity snapshot returned by the auth service. It replaces any
// previously fetched snapshot wholesale, never merged.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Credentials is the request body for login and registration.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// MessageResponse is the body of operations that return only a message.
type MessageResponse struct {
	Message string `json:"message"`
}
