package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/filekeeper/internal/server/config"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/versions"
	"github.com/google/uuid"
)

// ---- metadata store ----

// memStore keeps rows in maps and enforces the same unique constraints as
// the schema. Transactions are not isolated, but every write made inside
// a failed transaction is undone and row locks are held until the end.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	files    map[string]*models.File
	versions map[string]*models.FileVersion
	locks    map[string]*sync.Mutex

	// hooks, consulted under mu
	reserveErrs    int
	completeErr    error
	setCurrentErr  error
	getByOwnerErr  error
	discardErr     error
	reserveCalls   int
	discardedCalls int

	// afterGetByPath runs without mu held, once GetByPath has read its row.
	afterGetByPath func(fileID string)
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*models.User{},
		files:    map[string]*models.File{},
		versions: map[string]*models.FileVersion{},
		locks:    map[string]*sync.Mutex{},
	}
}

// fakeTx stands in for *sql.Tx.
type fakeTx struct {
	undo  []func()
	onEnd []func()
}

func (*fakeTx) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	panic("not used")
}
func (*fakeTx) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	panic("not used")
}
func (*fakeTx) QueryRowContext(context.Context, string, ...any) *sql.Row {
	panic("not used")
}

func (s *memStore) withTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	tx := &fakeTx{}
	defer func() {
		if err != nil {
			s.mu.Lock()
			for i := len(tx.undo) - 1; i >= 0; i-- {
				tx.undo[i]()
			}
			s.mu.Unlock()
		}
		for _, f := range tx.onEnd {
			f()
		}
	}()
	return fn(ctx, tx)
}

func record(db dbx.DBTX, undo func()) {
	if tx, ok := db.(*fakeTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (s *memStore) now() time.Time { return time.Now().UTC() }

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func (s *memStore) Users(db dbx.DBTX) users.Repository       { return &memUsers{s: s, db: db} }
func (s *memStore) Files(db dbx.DBTX) files.Repository       { return &memFiles{s: s, db: db} }
func (s *memStore) Versions(db dbx.DBTX) versions.Repository { return &memVersions{s: s, db: db} }
func (s *memStore) RunMigrations(context.Context, *sql.DB) (int64, error) {
	return 1, nil
}

// readable returns the readable versions matching keep, ordered by version.
func (s *memStore) readable(keep func(*models.FileVersion) bool) []*models.FileVersion {
	var out []*models.FileVersion
	for _, v := range s.versions {
		if v.Readable() && keep(v) {
			out = append(out, clone(v))
		}
	}
	slices.SortFunc(out, func(a, b *models.FileVersion) int { return int(a.Version - b.Version) })
	return out
}

type memUsers struct {
	s  *memStore
	db dbx.DBTX
}

func (r *memUsers) GetOrCreate(ctx context.Context, externalID string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[externalID]; ok {
		return clone(u), nil
	}
	u := &models.User{ID: uuid.NewString(), ExternalUserID: externalID, CreatedAt: r.s.now(), UpdatedAt: r.s.now()}
	// Not undone on rollback: the row is idempotent and other transactions
	// may already reference it.
	r.s.users[externalID] = u
	return clone(u), nil
}

func (r *memUsers) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[externalID]; ok {
		return clone(u), nil
	}
	return nil, common.ErrorNotFound
}

type memFiles struct {
	s  *memStore
	db dbx.DBTX
}

func (r *memFiles) Upsert(ctx context.Context, f *models.File) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f.ID != "" {
		if old, ok := r.s.files[f.ID]; ok {
			prev := clone(old)
			old.Name, old.CurrentVersionID, old.IsDeleted, old.UpdatedAt = f.Name, f.CurrentVersionID, f.IsDeleted, r.s.now()
			record(r.db, func() { r.s.files[prev.ID] = prev })
			return clone(old), nil
		}
	}
	n := clone(f)
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt, n.UpdatedAt = r.s.now(), r.s.now()
	r.s.files[n.ID] = n
	record(r.db, func() { delete(r.s.files, n.ID) })
	return clone(n), nil
}

func (r *memFiles) GetByID(ctx context.Context, id string) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f, ok := r.s.files[id]; ok {
		return clone(f), nil
	}
	return nil, common.ErrorNotFound
}

func (r *memFiles) LockByID(ctx context.Context, id string) (*models.File, error) {
	if tx, ok := r.db.(*fakeTx); ok {
		r.s.mu.Lock()
		l, ok := r.s.locks[id]
		if !ok {
			l = &sync.Mutex{}
			r.s.locks[id] = l
		}
		r.s.mu.Unlock()
		l.Lock()
		tx.onEnd = append(tx.onEnd, l.Unlock)
	}
	return r.GetByID(ctx, id)
}

func (r *memFiles) GetByPath(ctx context.Context, path string) (*models.File, error) {
	r.s.mu.Lock()
	var best *models.FileVersion
	for _, v := range r.s.versions {
		if v.Path == path && (best == nil || v.Version > best.Version) {
			best = v
		}
	}
	if best == nil {
		r.s.mu.Unlock()
		return nil, common.ErrorNotFound
	}
	f := clone(r.s.files[best.FileID])
	hook := r.s.afterGetByPath
	r.s.mu.Unlock()

	if hook != nil {
		hook(f.ID)
	}
	return f, nil
}

func (r *memFiles) GetByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.getByOwnerErr != nil {
		return nil, r.s.getByOwnerErr
	}
	var out []*models.File
	for _, f := range r.s.files {
		if f.OwnerID == ownerID && !f.IsDeleted {
			out = append(out, clone(f))
		}
	}
	slices.SortFunc(out, func(a, b *models.File) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *memFiles) SetCurrentVersion(ctx context.Context, fileID string, versionID *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.setCurrentErr != nil {
		return r.s.setCurrentErr
	}
	f, ok := r.s.files[fileID]
	if !ok {
		return common.ErrorNotFound
	}
	prev := f.CurrentVersionID
	f.CurrentVersionID = versionID
	record(r.db, func() { f.CurrentVersionID = prev })
	return nil
}

func (r *memFiles) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	prev := f.IsDeleted
	f.IsDeleted = true
	record(r.db, func() { f.IsDeleted = prev })
	return nil
}

func (r *memFiles) Restore(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	prev := f.IsDeleted
	f.IsDeleted = false
	record(r.db, func() { f.IsDeleted = prev })
	return nil
}

type memVersions struct {
	s  *memStore
	db dbx.DBTX
}

func (r *memVersions) Reserve(ctx context.Context, v *models.FileVersion) (*models.FileVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reserveCalls++
	if r.s.reserveErrs > 0 {
		r.s.reserveErrs--
		return nil, fmt.Errorf("reserve version: %w: injected", common.ErrVersionConflict)
	}
	for _, ex := range r.s.versions {
		if ex.Version == v.Version && (ex.FileID == v.FileID || ex.Path == v.Path) {
			return nil, fmt.Errorf("reserve version: %w: file_versions_path_version_key", common.ErrVersionConflict)
		}
	}
	n := clone(v)
	n.ID = uuid.NewString()
	n.UploadStatus = models.UploadStatusPending
	n.CreatedAt, n.UpdatedAt = r.s.now(), r.s.now()
	r.s.versions[n.ID] = n
	record(r.db, func() { delete(r.s.versions, n.ID) })
	return clone(n), nil
}

func (r *memVersions) Complete(ctx context.Context, id, checksum string, size int64) (*models.FileVersion, error) {
	if err := versions.ValidateChecksum(checksum); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.completeErr != nil {
		return nil, r.s.completeErr
	}
	v, ok := r.s.versions[id]
	if !ok || v.UploadStatus != models.UploadStatusPending {
		return nil, common.ErrorNotFound
	}
	prev := clone(v)
	v.Checksum, v.Size, v.UploadStatus, v.UpdatedAt = checksum, size, models.UploadStatusCompleted, r.s.now()
	record(r.db, func() { r.s.versions[id] = prev })
	return clone(v), nil
}

func (r *memVersions) DiscardReservation(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.discardErr != nil {
		return r.s.discardErr
	}
	r.s.discardedCalls++
	if v, ok := r.s.versions[id]; ok && v.UploadStatus == models.UploadStatusPending {
		delete(r.s.versions, id)
		record(r.db, func() { r.s.versions[id] = v })
	}
	return nil
}

func (r *memVersions) NextVersion(ctx context.Context, fileID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var highest int64
	for _, v := range r.s.versions {
		if v.FileID == fileID && v.Version > highest {
			highest = v.Version
		}
	}
	return highest + 1, nil
}

func (r *memVersions) GetByID(ctx context.Context, id string) (*models.FileVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v, ok := r.s.versions[id]; ok {
		return clone(v), nil
	}
	return nil, common.ErrorNotFound
}

func (r *memVersions) GetByPath(ctx context.Context, path string, limit int) ([]*models.FileVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.s.readable(func(v *models.FileVersion) bool { return v.Path == path })
	slices.Reverse(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memVersions) GetLatestByPath(ctx context.Context, path string) (*models.FileVersion, error) {
	out, _ := r.GetByPath(ctx, path, 1)
	if len(out) == 0 {
		return nil, common.ErrorNotFound
	}
	return out[0], nil
}

func (r *memVersions) GetByChecksum(ctx context.Context, checksum string) (*models.FileVersion, error) {
	if err := versions.ValidateChecksum(checksum); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.s.readable(func(v *models.FileVersion) bool { return v.Checksum == checksum })
	if len(out) == 0 {
		return nil, common.ErrorNotFound
	}
	slices.SortFunc(out, func(a, b *models.FileVersion) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out[0], nil
}

func (r *memVersions) GetCurrentVersion(ctx context.Context, fileID string) (*models.FileVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.s.readable(func(v *models.FileVersion) bool { return v.FileID == fileID })
	if len(out) == 0 {
		return nil, common.ErrorNotFound
	}
	return out[len(out)-1], nil
}

func (r *memVersions) GetVersions(ctx context.Context, fileID string) ([]*models.FileVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.readable(func(v *models.FileVersion) bool { return v.FileID == fileID }), nil
}

func (r *memVersions) GetByIDs(ctx context.Context, ids []string) ([]*models.FileVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.readable(func(v *models.FileVersion) bool { return slices.Contains(ids, v.ID) }), nil
}

func (r *memVersions) GetRevisions(ctx context.Context, fileID string, limit int, includeDeleted bool) ([]*models.FileVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.FileVersion
	for _, v := range r.s.versions {
		if v.FileID == fileID && v.UploadStatus == models.UploadStatusCompleted && (includeDeleted || !v.IsDeleted) {
			out = append(out, clone(v))
		}
	}
	slices.SortFunc(out, func(a, b *models.FileVersion) int { return int(b.Version - a.Version) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memVersions) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.versions[id]
	if !ok || v.UploadStatus != models.UploadStatusCompleted {
		return common.ErrorNotFound
	}
	prev := v.IsDeleted
	v.IsDeleted = true
	record(r.db, func() { v.IsDeleted = prev })
	return nil
}

// versionsOf returns every row of path, pending included, ordered by version.
func (s *memStore) versionsOf(path string) []*models.FileVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.FileVersion
	for _, v := range s.versions {
		if v.Path == path {
			out = append(out, clone(v))
		}
	}
	slices.SortFunc(out, func(a, b *models.FileVersion) int { return int(a.Version - b.Version) })
	return out
}

func (s *memStore) fileByID(id string) *models.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[id]; ok {
		return clone(f)
	}
	return nil
}

// ---- blob store ----

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string]int

	putErr     error
	ensureErr  error
	checkErr   error
	getErr     error
	listResult []blobstore.StorageObject
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, puts: map[string]int{}}
}

func (b *memBlobs) EnsureBucket(ctx context.Context, bucket string) error {
	return b.ensureErr
}

func (b *memBlobs) Put(ctx context.Context, bucket, key string, r io.Reader, size int64) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[bucket+"/"+key] = data
	b.puts[bucket+"/"+key]++
	return key, nil
}

func (b *memBlobs) GetStream(ctx context.Context, bucket, key string) (*blobstore.ChunkStream, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	b.mu.Lock()
	data, ok := b.objects[bucket+"/"+key]
	b.mu.Unlock()
	if !ok {
		return nil, &blobstore.StoreError{Op: "get", Kind: blobstore.KindNotFound, Err: fmt.Errorf("no such key %s", key)}
	}
	return blobstore.NewChunkStream(io.NopCloser(bytes.NewReader(data)), 4, int64(len(data))), nil
}

func (b *memBlobs) List(ctx context.Context, bucket, prefix string) ([]blobstore.StorageObject, error) {
	var out []blobstore.StorageObject
	for _, o := range b.listResult {
		if strings.HasPrefix(o.Name, prefix) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (b *memBlobs) PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("http://blobs.local/%s/%s?ttl=%d", bucket, key, int(ttl.Seconds())), nil
}

func (b *memBlobs) Check(ctx context.Context) error {
	return b.checkErr
}

func (b *memBlobs) object(bucket, key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[bucket+"/"+key]
	return data, ok
}

// ---- cache ----

type memCache struct {
	mu        sync.Mutex
	touched   map[string]int
	lastAt    map[string]time.Time
	err       error
	lookupErr error
	lookups   int
	pingErr   error
}

func (c *memCache) Touch(ctx context.Context, fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.touched == nil {
		c.touched = map[string]int{}
	}
	c.touched[fileID]++
	if c.lastAt == nil {
		c.lastAt = map[string]time.Time{}
	}
	c.lastAt[fileID] = time.Now().UTC()
	return nil
}

func (c *memCache) LastTouched(ctx context.Context, fileID string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	if c.lookupErr != nil {
		return time.Time{}, false, c.lookupErr
	}
	at, ok := c.lastAt[fileID]
	return at, ok, nil
}

func (c *memCache) Ping(ctx context.Context) error {
	return c.pingErr
}

// ---- service ----

type fixture struct {
	svc   *FileService
	store *memStore
	blobs *memBlobs
	cache *memCache
}

func newFixture(retries int) *fixture {
	return newFixtureWithLogger(retries, logging.Nop())
}

func newFixtureWithLogger(retries int, logger logging.Logger) *fixture {
	store := newMemStore()
	blobs := newMemBlobs()
	cache := &memCache{}
	svc := NewFileService(nil, store, blobs, cache, logger, &config.Config{UploadRetries: retries})
	svc.withTx = store.withTx
	svc.pingDB = func(context.Context) error { return nil }
	return &fixture{svc: svc, store: store, blobs: blobs, cache: cache}
}
