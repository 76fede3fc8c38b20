package models

import (
	"slices"
	"time"
)

// Role is a user's relation to a shared room.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleMember  Role = "member"
	RolePending Role = "pending"
	RoleNone    Role = "none"
)

// PendingRequest is an unapproved visitor waiting for the owner.
type PendingRequest struct {
	UID         string    `json:"uid" firestore:"uid" msgpack:"uid"`
	Name        string    `json:"name" firestore:"name" msgpack:"name"`
	RequestedAt time.Time `json:"requestedAt" firestore:"requestedAt" msgpack:"requestedAt"`
}

// Room is the access-gated namespace for shared pins and map metadata.
// OwnerUID never changes once set.
type Room struct {
	RoomID       string           `json:"roomId" msgpack:"roomId"`
	OwnerUID     string           `json:"ownerUid" msgpack:"ownerUid"`
	AllowedUsers []string         `json:"allowedUsers" msgpack:"allowedUsers"`
	Pending      []PendingRequest `json:"pending" msgpack:"pending"`
	CreatedAt    time.Time        `json:"createdAt" msgpack:"createdAt"`
	ExpiresAt    time.Time        `json:"expiresAt" msgpack:"expiresAt"`
}

// IsAllowed reports whether uid may interact with the room's pins and metadata.
func (r *Room) IsAllowed(uid string) bool {
	if uid == "" {
		return false
	}
	return uid == r.OwnerUID || slices.Contains(r.AllowedUsers, uid)
}

// IsPending reports whether uid is waiting for approval.
func (r *Room) IsPending(uid string) bool {
	return slices.ContainsFunc(r.Pending, func(p PendingRequest) bool { return p.UID == uid })
}

// RoleOf returns the role uid holds in the room.
func (r *Room) RoleOf(uid string) Role {
	switch {
	case uid == "":
		return RoleNone
	case uid == r.OwnerUID:
		return RoleOwner
	case slices.Contains(r.AllowedUsers, uid):
		return RoleMember
	case r.IsPending(uid):
		return RolePending
	default:
		return RoleNone
	}
}

// RoomSummary is an entry of a user's recently used rooms.
type RoomSummary struct {
	RoomID    string    `json:"roomId"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}
