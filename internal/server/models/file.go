// Package models defines server-side data models persisted in the database
// and the response shapes returned by the file service.
package models

import "time"

// File is the logical entity a caller addresses by path. Its bytes live in
// FileVersion rows; CurrentVersionID points at the live one.
type File struct {
	ID      string
	Name    string
	OwnerID string
	// CurrentVersionID is nil until the first upload completes.
	CurrentVersionID *string
	IsDeleted        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Upload states of a FileVersion row.
const (
	UploadStatusPending   = "pending"
	UploadStatusCompleted = "completed"
)

// ChecksumLength is the hex length of a SHA-256 digest.
const ChecksumLength = 64

// FileVersion is one immutable revision of a File. A row is created in
// the pending state when its version number is reserved and becomes
// readable once the blob write succeeded and the row was completed.
type FileVersion struct {
	ID      string
	FileID  string
	Version int64
	Size    int64
	// Checksum is empty while the row is pending.
	Checksum     string
	Path         string
	Bucket       string
	UploadStatus string
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Readable reports whether the row may be served to callers.
func (v *FileVersion) Readable() bool {
	return v.UploadStatus == UploadStatusCompleted && !v.IsDeleted
}
