package types

import "strings"

// Group is the group metadata both gateways return. Evolution names the
// subject field, WAHA builds vary between subject and name.
type Group struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Title   string `json:"title"`
}

// DisplayName returns the first non-blank title the group carries.
func (g *Group) DisplayName() string {
	for _, v := range []string{g.Subject, g.Name, g.Title} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ProfilePictureRequest is Evolution's fetchProfilePictureUrl body.
type ProfilePictureRequest struct {
	Number string `json:"number"`
}
