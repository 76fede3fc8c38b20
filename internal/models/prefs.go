package models

import "time"

// IconEntry is an image saved to a user's icon library.
type IconEntry struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
	URL  string `json:"url" msgpack:"url"`
}

// UserPrefs holds the per-user marker customizations that follow an identity
// across rooms.
type UserPrefs struct {
	UID string `json:"uid" msgpack:"uid"`
	// IconOverrides maps a marker type to the image drawn in its place.
	IconOverrides map[string]string `json:"iconOverrides" msgpack:"iconOverrides"`
	IconLibrary   []IconEntry       `json:"iconLibrary" msgpack:"iconLibrary"`
	UpdatedAt     time.Time         `json:"updatedAt" msgpack:"updatedAt"`
}

// NewUserPrefs returns empty preferences for uid.
func NewUserPrefs(uid string) *UserPrefs {
	return &UserPrefs{
		UID:           uid,
		IconOverrides: map[string]string{},
		IconLibrary:   []IconEntry{},
	}
}
