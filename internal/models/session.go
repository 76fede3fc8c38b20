package models

// Mode is where a scope's pins live.
type Mode string

const (
	// ModeLocal keeps pins in a private per-user namespace without a room gate.
	ModeLocal Mode = "local"
	// ModeShared keeps pins in a room guarded by the owner/approval protocol.
	ModeShared Mode = "shared"
)

// LocalKeyPrefix starts the storage key of every local scope.
const LocalKeyPrefix = "local-"

// Identity is the caller as resolved from the request.
type Identity struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// Scope is the resolved session context of a request.
type Scope struct {
	Mode     Mode     `json:"mode"`
	RoomID   string   `json:"roomId,omitempty"`
	Identity Identity `json:"identity"`
}

// Key is the storage namespace for the scope's pins and map metadata.
func (s Scope) Key() string {
	if s.Mode == ModeShared {
		return s.RoomID
	}
	return LocalKeyPrefix + s.Identity.UID
}

// Shared reports whether the scope is a shared room.
func (s Scope) Shared() bool {
	return s.Mode == ModeShared
}
