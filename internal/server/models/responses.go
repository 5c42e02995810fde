package models

import "time"

// FileResponse describes one file at a given version. LastAccessedAt is
// set while the cache holds a recent-activity marker for the file.
type FileResponse struct {
	ID             string     `json:"id"`
	VersionID      string     `json:"version_id"`
	Name           string     `json:"name"`
	Path           string     `json:"path"`
	Size           int64      `json:"size"`
	Version        int64      `json:"version"`
	Checksum       string     `json:"checksum"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	IsDownloadable bool       `json:"is_downloadable"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// ListFilesResponse lists the live files of one owner.
type ListFilesResponse struct {
	OwnerID string         `json:"owner_id"`
	Files   []FileResponse `json:"files"`
}

// FileVersionResponse is one entry of a revision history.
type FileVersionResponse struct {
	ID         string    `json:"id"`
	Version    int64     `json:"version"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	Path       string    `json:"path"`
	IsDeleted  bool      `json:"is_deleted"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Service status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ProbeUnavailable is reported for every failed probe.
const ProbeUnavailable = "unavailable"

// ServiceStatusResponse aggregates the latency of the three backing stores.
// Errors marks each failed probe, keyed by "db", "cache" or "storage", with
// ProbeUnavailable; the underlying error is only logged.
type ServiceStatusResponse struct {
	DBLatencyMs      float64           `json:"db_latency_ms"`
	CacheLatencyMs   float64           `json:"cache_latency_ms"`
	StorageLatencyMs float64           `json:"storage_latency_ms"`
	Status           string            `json:"status"`
	Errors           map[string]string `json:"errors,omitempty"`
}

// Healthy reports whether every probe succeeded.
func (s *ServiceStatusResponse) Healthy() bool {
	return s.Status == StatusHealthy
}

// VersionResponse converts a row into its history entry.
func VersionResponse(v *FileVersion) FileVersionResponse {
	return FileVersionResponse{
		ID:         v.ID,
		Version:    v.Version,
		Checksum:   v.Checksum,
		Size:       v.Size,
		Path:       v.Path,
		IsDeleted:  v.IsDeleted,
		ModifiedAt: v.UpdatedAt,
	}
}
