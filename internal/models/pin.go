// Package models contains domain types for the tactical map backend.
package models

import "time"

// DefaultProfile is the profile every map has, and the fallback for unknown profile ids.
const DefaultProfile = "default"

// Pin is a single map annotation.
// X and Y are map-space pixel coordinates within the owning map's bounds.
type Pin struct {
	ID            string     `json:"id" firestore:"-" msgpack:"id"`
	RoomID        string     `json:"roomId" firestore:"roomId" msgpack:"roomId"`
	MapID         string     `json:"mapId" firestore:"mapId" msgpack:"mapId"`
	LayerID       string     `json:"layerId,omitempty" firestore:"layerId" msgpack:"layerId,omitempty"`
	X             float64    `json:"x" firestore:"x" msgpack:"x"`
	Y             float64    `json:"y" firestore:"y" msgpack:"y"`
	Type          string     `json:"type" firestore:"type" msgpack:"type"`
	IconURL       string     `json:"iconUrl,omitempty" firestore:"iconUrl,omitempty" msgpack:"iconUrl,omitempty"`
	ImageURL      string     `json:"imageUrl,omitempty" firestore:"imageUrl,omitempty" msgpack:"imageUrl,omitempty"`
	Note          string     `json:"note,omitempty" firestore:"note,omitempty" msgpack:"note,omitempty"`
	ProfileID     string     `json:"profileId" firestore:"profileId" msgpack:"profileId"`
	CreatedAt     time.Time  `json:"createdAt" firestore:"createdAt" msgpack:"createdAt"`
	CreatedBy     string     `json:"createdBy" firestore:"createdBy" msgpack:"createdBy"`
	CreatedByName string     `json:"createdByName" firestore:"createdByName" msgpack:"createdByName"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty" firestore:"expiresAt,omitempty" msgpack:"expiresAt,omitempty"`
}

// PinPatch is a partial update of the mutable pin fields. Nil fields are left untouched.
type PinPatch struct {
	Note     *string
	ImageURL *string
	IconURL  *string
}

// Empty reports whether the patch changes nothing.
func (p PinPatch) Empty() bool {
	return p.Note == nil && p.ImageURL == nil && p.IconURL == nil
}

// Apply copies the set fields of the patch onto pin.
func (p PinPatch) Apply(pin *Pin) {
	if p.Note != nil {
		pin.Note = *p.Note
	}
	if p.ImageURL != nil {
		pin.ImageURL = *p.ImageURL
	}
	if p.IconURL != nil {
		pin.IconURL = *p.IconURL
	}
}

// Expired reports whether the pin's soft TTL has passed at now.
func (p *Pin) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}
