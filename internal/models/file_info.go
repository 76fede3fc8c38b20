package models

import "time"

// Stored file kinds.
const (
	FileKindBackground = "background"
	FileKindSnapshot   = "snapshot"
)

// FileInfo represents metadata about a stored file (map backgrounds, exported snapshots).
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Kind        string    `json:"kind"`
	Owner       string    `json:"owner,omitempty"`
}

// ValidFileKind reports whether kind is one of the stored file kinds.
func ValidFileKind(kind string) bool {
	return kind == FileKindBackground || kind == FileKindSnapshot
}
