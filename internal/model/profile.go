package model

import "time"

// Profile is a user directory entry. Profiles are provisioned by the identity
// service and are read-only here: the messaging API only stamps profile IDs
// onto messages and relationships.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the name to render for the profile, falling back to the
// local part of the email when the name is empty.
func (p *Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	for i := 0; i < len(p.Email); i++ {
		if p.Email[i] == '@' {
			return p.Email[:i]
		}
	}
	return p.Email
}
