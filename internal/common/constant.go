package common

// AuthorizationHeaderName carries the bearer token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// ChecksumHeaderName and VersionHeaderName are set on download responses.
const (
	ChecksumHeaderName = "X-Checksum-Sha256"
	VersionHeaderName  = "X-File-Version"
)
