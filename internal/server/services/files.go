// Package services contains server-side business logic. This file implements
// FileService, which keeps file metadata in PostgreSQL and file contents in
// the blob store consistent.
//
// An upload reserves its version number first (a pending row), then writes
// the blob, then completes the row and moves the file pointer in one
// transaction. A row becomes readable only in that last step, so metadata
// never points at a blob that was not written.
package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/naming"
	"github.com/dmitrijs2005/filekeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/filekeeper/internal/server/config"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// BlobStore is the object storage used for file contents.
type BlobStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64) (string, error)
	GetStream(ctx context.Context, bucket, key string) (*blobstore.ChunkStream, error)
	List(ctx context.Context, bucket, prefix string) ([]blobstore.StorageObject, error)
	PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Check(ctx context.Context) error
}

// CacheHint records recent activity per file. Failures never fail a request.
type CacheHint interface {
	Touch(ctx context.Context, fileID string) error
	LastTouched(ctx context.Context, fileID string) (time.Time, bool, error)
	Ping(ctx context.Context) error
}

const (
	DefaultRevisionsLimit = 10
	MaxRevisionsLimit     = 1000
	DefaultUploadRetries  = 3
	DefaultPresignTTL     = 15 * time.Minute
	maxNameLength         = 512
)

var bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Reference addresses a file either by version id or by logical path.
// Exactly one field is set.
type Reference struct {
	VersionID string
	Path      string
}

// ParseReference treats a UUID as a version id and anything else as a path.
func ParseReference(s string) (Reference, error) {
	s = strings.TrimSpace(s)
	if id, err := uuid.Parse(s); err == nil {
		return Reference{VersionID: id.String()}, nil
	}
	p := naming.CanonicalPath(s)
	if p == "" {
		return Reference{}, fmt.Errorf("%w: empty file reference", common.ErrorValidation)
	}
	return Reference{Path: p}, nil
}

func (r Reference) String() string {
	if r.VersionID != "" {
		return r.VersionID
	}
	return r.Path
}

// UploadInput describes one upload. Size is the declared payload length,
// -1 when unknown.
type UploadInput struct {
	Payload io.Reader
	Size    int64
	Name    string
	Path    string
	Bucket  string
	OwnerID string
}

// FileService coordinates the metadata store and the blob store.
// It holds no per-request state and is safe for concurrent use.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       BlobStore
	cache       CacheHint
	logger      logging.Logger
	maxAttempts int
	presignTTL  time.Duration

	withTx func(ctx context.Context, fn dbx.TxFunc) error
	pingDB func(ctx context.Context) error
}

// NewFileService wires the coordinator. cache may be nil.
func NewFileService(db *sql.DB, m repomanager.RepositoryManager, blobs BlobStore, cache CacheHint,
	logger logging.Logger, cfg *config.Config) *FileService {
	s := &FileService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		cache:       cache,
		logger:      logger.With("module", "files"),
		maxAttempts: cfg.UploadRetries,
		presignTTL:  cfg.PresignTTL,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultUploadRetries
	}
	if s.presignTTL <= 0 {
		s.presignTTL = DefaultPresignTTL
	}
	s.withTx = func(ctx context.Context, fn dbx.TxFunc) error {
		return dbx.WithTx(ctx, s.db, nil, fn)
	}
	s.pingDB = func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	}
	return s
}

// reservation is a pending FileVersion and the File it belongs to.
type reservation struct {
	file    *models.File
	version *models.FileVersion
	// created is set when this upload also created the File row.
	created bool
}

// Upload stores a new version of in.Path and returns it once it is readable.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (*models.FileResponse, error) {
	p, err := validateUpload(&in)
	if err != nil {
		return nil, err
	}
	log := s.logger.With("path", p, "bucket", in.Bucket, "owner", in.OwnerID)

	var res *reservation
	for attempt := 1; ; attempt++ {
		res, err = s.reserve(ctx, in, p)
		if err == nil {
			break
		}
		if !errors.Is(err, common.ErrVersionConflict) || attempt >= s.maxAttempts {
			return nil, err
		}
		log.Warn(ctx, "version conflict, retrying", "attempt", attempt, "error", err)
	}

	v := res.version
	key := naming.ObjectKey(p, v.Version)
	log = log.With("version", v.Version, "key", key)

	if err := s.blobs.EnsureBucket(ctx, in.Bucket); err != nil {
		s.discard(ctx, res)
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	hr := newHashingReader(in.Payload)
	if _, err := s.blobs.Put(ctx, in.Bucket, key, hr, in.Size); err != nil {
		s.discard(ctx, res)
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if in.Size >= 0 && hr.n != in.Size {
		s.discard(ctx, res)
		log.Warn(ctx, "payload size mismatch", "declared", in.Size, "read", hr.n)
		return nil, fmt.Errorf("%w: payload is %d bytes, declared %d", common.ErrorValidation, hr.n, in.Size)
	}
	checksum := hr.Sum()

	var committed *models.FileVersion
	err = s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Files(tx).LockByID(ctx, res.file.ID); err != nil {
			return err
		}
		versions := s.repomanager.Versions(tx)
		done, err := versions.Complete(ctx, v.ID, checksum, hr.n)
		if err != nil {
			return err
		}
		latest, err := versions.GetCurrentVersion(ctx, res.file.ID)
		if err != nil {
			return err
		}
		committed = done
		return s.repomanager.Files(tx).SetCurrentVersion(ctx, res.file.ID, &latest.ID)
	})
	if err != nil {
		log.Error(ctx, "orphaned blob", "error", err)
		s.discard(ctx, res)
		return nil, fmt.Errorf("%w: commit metadata: %w", common.ErrorStoreTransport, err)
	}

	log.Info(ctx, "upload committed", "size", committed.Size, "checksum", committed.Checksum)
	s.touch(ctx, res.file.ID)

	return &models.FileResponse{
		ID:             res.file.ID,
		VersionID:      committed.ID,
		Name:           res.file.Name,
		Path:           committed.Path,
		Size:           committed.Size,
		Version:        committed.Version,
		Checksum:       committed.Checksum,
		CreatedAt:      committed.CreatedAt,
		UpdatedAt:      committed.UpdatedAt,
		IsDownloadable: true,
	}, nil
}

func validateUpload(in *UploadInput) (string, error) {
	p := naming.CanonicalPath(in.Path)
	switch {
	case in.Payload == nil:
		return "", fmt.Errorf("%w: missing payload", common.ErrorValidation)
	case p == "":
		return "", fmt.Errorf("%w: empty path", common.ErrorValidation)
	case in.OwnerID == "":
		return "", fmt.Errorf("%w: empty owner", common.ErrorValidation)
	case !bucketPattern.MatchString(in.Bucket):
		return "", fmt.Errorf("%w: invalid bucket name %q", common.ErrorValidation, in.Bucket)
	case in.Size < -1:
		return "", fmt.Errorf("%w: invalid size %d", common.ErrorValidation, in.Size)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		in.Name = path.Base(p)
	}
	if len(in.Name) > maxNameLength {
		return "", fmt.Errorf("%w: name longer than %d bytes", common.ErrorValidation, maxNameLength)
	}
	return p, nil
}

// reserve resolves or creates the File for p and claims the next version
// number with a pending row, all in one short transaction.
func (s *FileService) reserve(ctx context.Context, in UploadInput, p string) (*reservation, error) {
	res := &reservation{}
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetOrCreate(ctx, in.OwnerID)
		if err != nil {
			return err
		}

		files := s.repomanager.Files(tx)
		file, err := files.GetByPath(ctx, p)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			file, err = files.Upsert(ctx, &models.File{Name: in.Name, OwnerID: user.ID})
			if err != nil {
				return err
			}
			res.created = true
		case err != nil:
			return err
		case file.OwnerID != user.ID:
			return fmt.Errorf("%w: %s belongs to another user", common.ErrorPermission, p)
		case file.IsDeleted:
			if err := files.Restore(ctx, file.ID); err != nil {
				return err
			}
			file.IsDeleted = false
		}
		res.file = file

		versions := s.repomanager.Versions(tx)
		next, err := versions.NextVersion(ctx, file.ID)
		if err != nil {
			return err
		}
		res.version, err = versions.Reserve(ctx, &models.FileVersion{
			FileID:  file.ID,
			Version: next,
			Path:    p,
			Bucket:  in.Bucket,
		})
		return err
	})
	if err != nil {
		return nil, storeErr("reserve version", err)
	}
	return res, nil
}

// discard drops a reservation after a failed write. A File created by the
// same upload is soft-deleted unless another upload has reserved on it since.
func (s *FileService) discard(ctx context.Context, res *reservation) {
	ctx = context.WithoutCancel(ctx)
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		versions := s.repomanager.Versions(tx)
		if err := versions.DiscardReservation(ctx, res.version.ID); err != nil {
			return err
		}
		if !res.created {
			return nil
		}
		next, err := versions.NextVersion(ctx, res.file.ID)
		if err != nil {
			return err
		}
		if next > 1 {
			return nil
		}
		return s.repomanager.Files(tx).Delete(ctx, res.file.ID)
	})
	if err != nil {
		s.logger.Error(ctx, "failed to discard reservation",
			"version_id", res.version.ID, "path", res.version.Path, "error", err)
	}
}

func (s *FileService) touch(ctx context.Context, fileID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Touch(ctx, fileID); err != nil {
		s.logger.Warn(ctx, "cache hint failed", "file_id", fileID, "error", err)
	}
}

// resolveVersion returns the readable version ref points at.
func (s *FileService) resolveVersion(ctx context.Context, ref Reference) (*models.FileVersion, error) {
	versions := s.repomanager.Versions(s.db)
	var (
		v   *models.FileVersion
		err error
	)
	if ref.VersionID != "" {
		v, err = versions.GetByID(ctx, ref.VersionID)
		if err == nil && !v.Readable() {
			err = common.ErrorNotFound
		}
	} else {
		v, err = versions.GetLatestByPath(ctx, ref.Path)
	}
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: file %s", common.ErrorNotFound, ref)
		}
		return nil, storeErr("resolve version", err)
	}
	return v, nil
}

// Download opens the version ref points at. The caller owns the stream and
// must drain or Close it.
func (s *FileService) Download(ctx context.Context, ref Reference) (*blobstore.ChunkStream, *models.FileVersion, error) {
	v, err := s.resolveVersion(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	stream, err := s.blobs.GetStream(ctx, v.Bucket, naming.ObjectKey(v.Path, v.Version))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "blob missing for readable version",
				"version_id", v.ID, "path", v.Path, "version", v.Version)
		}
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	s.touch(ctx, v.FileID)
	return stream, v, nil
}

// ListFiles returns the live files of the user with the given external id,
// each at its current version. Unknown users have no files.
func (s *FileService) ListFiles(ctx context.Context, ownerID string) (*models.ListFilesResponse, error) {
	resp := &models.ListFilesResponse{OwnerID: ownerID, Files: []models.FileResponse{}}

	user, err := s.repomanager.Users(s.db).GetByExternalID(ctx, ownerID)
	if errors.Is(err, common.ErrorNotFound) {
		return resp, nil
	}
	if err != nil {
		return nil, storeErr("list files", err)
	}

	files, err := s.repomanager.Files(s.db).GetByOwner(ctx, user.ID)
	if err != nil {
		return nil, storeErr("list files", err)
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		if f.CurrentVersionID != nil {
			ids = append(ids, *f.CurrentVersionID)
		}
	}
	current, err := s.repomanager.Versions(s.db).GetByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr("list files", err)
	}
	byID := make(map[string]*models.FileVersion, len(current))
	for _, v := range current {
		byID[v.ID] = v
	}

	for _, f := range files {
		if f.CurrentVersionID == nil {
			continue
		}
		v, ok := byID[*f.CurrentVersionID]
		if !ok {
			continue
		}
		resp.Files = append(resp.Files, models.FileResponse{
			ID:             f.ID,
			VersionID:      v.ID,
			Name:           f.Name,
			Path:           v.Path,
			Size:           v.Size,
			Version:        v.Version,
			Checksum:       v.Checksum,
			CreatedAt:      f.CreatedAt,
			UpdatedAt:      v.UpdatedAt,
			IsDownloadable: true,
		})
	}
	s.fillLastAccessed(ctx, resp.Files)
	return resp, nil
}

// fillLastAccessed copies the cache markers into files. The first cache
// error stops the lookups; the listing itself never fails because of it.
func (s *FileService) fillLastAccessed(ctx context.Context, files []models.FileResponse) {
	if s.cache == nil {
		return
	}
	for i := range files {
		at, ok, err := s.cache.LastTouched(ctx, files[i].ID)
		if err != nil {
			s.logger.Warn(ctx, "cache lookup failed", "file_id", files[i].ID, "error", err)
			return
		}
		if ok {
			files[i].LastAccessedAt = &at
		}
	}
}

// resolveFileID finds the File ref belongs to.
func (s *FileService) resolveFileID(ctx context.Context, ref Reference) (string, error) {
	if ref.VersionID != "" {
		v, err := s.repomanager.Versions(s.db).GetByID(ctx, ref.VersionID)
		if err != nil {
			return "", err
		}
		if v.UploadStatus != models.UploadStatusCompleted {
			return "", common.ErrorNotFound
		}
		return v.FileID, nil
	}
	f, err := s.repomanager.Files(s.db).GetByPath(ctx, ref.Path)
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

// GetRevisions returns up to limit versions of the file ref belongs to,
// newest first. A non-positive limit means DefaultRevisionsLimit.
func (s *FileService) GetRevisions(ctx context.Context, ref Reference, limit int, includeDeleted bool) ([]models.FileVersionResponse, error) {
	switch {
	case limit <= 0:
		limit = DefaultRevisionsLimit
	case limit > MaxRevisionsLimit:
		limit = MaxRevisionsLimit
	}

	fileID, err := s.resolveFileID(ctx, ref)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: file %s", common.ErrorNotFound, ref)
		}
		return nil, storeErr("get revisions", err)
	}

	rows, err := s.repomanager.Versions(s.db).GetRevisions(ctx, fileID, limit, includeDeleted)
	if err != nil {
		return nil, storeErr("get revisions", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no revisions for %s", common.ErrorNotFound, ref)
	}

	result := make([]models.FileVersionResponse, 0, len(rows))
	for _, v := range rows {
		result = append(result, models.VersionResponse(v))
	}
	return result, nil
}

// DeleteVersion soft-deletes a version owned by ownerID. When it was the
// current version the file pointer moves to the newest remaining one, or
// is cleared.
func (s *FileService) DeleteVersion(ctx context.Context, ownerID, versionID string) error {
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		versions := s.repomanager.Versions(tx)
		v, err := versions.GetByID(ctx, versionID)
		if err != nil {
			return err
		}
		if !v.Readable() {
			return common.ErrorNotFound
		}

		files := s.repomanager.Files(tx)
		file, err := files.LockByID(ctx, v.FileID)
		if err != nil {
			return err
		}
		if err := s.checkOwner(ctx, tx, ownerID, file); err != nil {
			return err
		}

		if err := versions.Delete(ctx, v.ID); err != nil {
			return err
		}
		if file.CurrentVersionID == nil || *file.CurrentVersionID != v.ID {
			return nil
		}
		latest, err := versions.GetCurrentVersion(ctx, file.ID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			return files.SetCurrentVersion(ctx, file.ID, nil)
		case err != nil:
			return err
		}
		return files.SetCurrentVersion(ctx, file.ID, &latest.ID)
	})
	if err != nil {
		return storeErr("delete version", err)
	}
	s.logger.Info(ctx, "version deleted", "version_id", versionID, "owner", ownerID)
	return nil
}

// DeleteFile hides the file ref belongs to from ListFiles. Its versions stay
// downloadable, and a later upload to the same path revives it.
func (s *FileService) DeleteFile(ctx context.Context, ownerID string, ref Reference) error {
	fileID, err := s.resolveFileID(ctx, ref)
	if err != nil {
		return storeErr("delete file", err)
	}
	err = s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		files := s.repomanager.Files(tx)
		file, err := files.LockByID(ctx, fileID)
		if err != nil {
			return err
		}
		if err := s.checkOwner(ctx, tx, ownerID, file); err != nil {
			return err
		}
		return files.Delete(ctx, file.ID)
	})
	if err != nil {
		return storeErr("delete file", err)
	}
	s.logger.Info(ctx, "file deleted", "file_id", fileID, "owner", ownerID)
	return nil
}

func (s *FileService) checkOwner(ctx context.Context, tx dbx.DBTX, ownerID string, file *models.File) error {
	user, err := s.repomanager.Users(tx).GetByExternalID(ctx, ownerID)
	if errors.Is(err, common.ErrorNotFound) || (err == nil && user.ID != file.OwnerID) {
		return fmt.Errorf("%w: file %s belongs to another user", common.ErrorPermission, file.ID)
	}
	return err
}

// FindByChecksum returns the oldest readable version with the given content.
func (s *FileService) FindByChecksum(ctx context.Context, checksum string) (*models.FileVersionResponse, error) {
	v, err := s.repomanager.Versions(s.db).GetByChecksum(ctx, strings.ToLower(strings.TrimSpace(checksum)))
	if err != nil {
		return nil, storeErr("find by checksum", err)
	}
	resp := models.VersionResponse(v)
	return &resp, nil
}

// PresignDownload returns a time-limited direct download URL for ref.
// A non-positive ttl means the configured default.
func (s *FileService) PresignDownload(ctx context.Context, ref Reference, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.presignTTL
	}
	v, err := s.resolveVersion(ctx, ref)
	if err != nil {
		return "", err
	}
	url, err := s.blobs.PresignedURL(ctx, v.Bucket, naming.ObjectKey(v.Path, v.Version), ttl)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return url, nil
}

// ListStoredObjects lists the content objects the blob store holds for
// logicalPath, independent of the metadata store.
func (s *FileService) ListStoredObjects(ctx context.Context, bucket, logicalPath string) ([]blobstore.StorageObject, error) {
	p := naming.CanonicalPath(logicalPath)
	if p == "" {
		return nil, fmt.Errorf("%w: empty path", common.ErrorValidation)
	}
	if bucket != "" && !bucketPattern.MatchString(bucket) {
		return nil, fmt.Errorf("%w: invalid bucket name %q", common.ErrorValidation, bucket)
	}
	objs, err := s.blobs.List(ctx, bucket, naming.ListPrefix(p))
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	result := make([]blobstore.StorageObject, 0, len(objs))
	for _, o := range objs {
		if _, ok := naming.VersionOf(p, o.Name); ok {
			result = append(result, o)
		}
	}
	return result, nil
}

// storeErr leaves classified errors alone and marks everything else as a
// metadata store failure.
func storeErr(op string, err error) error {
	for _, known := range []error{
		common.ErrorNotFound,
		common.ErrVersionConflict,
		common.ErrorValidation,
		common.ErrorPermission,
		common.ErrorStoreTransport,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", common.ErrorStoreTransport, op, err)
}

// hashingReader computes SHA-256 and length of everything read through it.
type hashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: sha256.New()}
}

func (h *hashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.h.Write(p[:n])
		h.n += int64(n)
	}
	return n, err
}

func (h *hashingReader) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}
