// Package rest exposes the file service over HTTP using gin.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/dmitrijs2005/filekeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// FileAPI is the part of services.FileService the HTTP surface calls.
type FileAPI interface {
	Upload(ctx context.Context, in services.UploadInput) (*models.FileResponse, error)
	Download(ctx context.Context, ref services.Reference) (*blobstore.ChunkStream, *models.FileVersion, error)
	ListFiles(ctx context.Context, ownerID string) (*models.ListFilesResponse, error)
	GetRevisions(ctx context.Context, ref services.Reference, limit int, includeDeleted bool) ([]models.FileVersionResponse, error)
	DeleteVersion(ctx context.Context, ownerID, versionID string) error
	DeleteFile(ctx context.Context, ownerID string, ref services.Reference) error
	FindByChecksum(ctx context.Context, checksum string) (*models.FileVersionResponse, error)
	PresignDownload(ctx context.Context, ref services.Reference, ttl time.Duration) (string, error)
	ListStoredObjects(ctx context.Context, bucket, logicalPath string) ([]blobstore.StorageObject, error)
	GetServiceStatus(ctx context.Context) *models.ServiceStatusResponse
}

const shutdownTimeout = 10 * time.Second

type Server struct {
	address       string
	files         FileAPI
	logger        logging.Logger
	jwtSecret     []byte
	defaultBucket string
}

func NewServer(a string, l logging.Logger, files FileAPI, secretKey, defaultBucket string) *Server {
	return &Server{
		address:       a,
		files:         files,
		logger:        l.With("module", "rest_server"),
		jwtSecret:     []byte(secretKey),
		defaultBucket: defaultBucket,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", s.health)
	v1.GET("/files/ping", s.serviceStatus)

	files := v1.Group("/files", s.authMiddleware())
	files.POST("/upload", s.upload)
	files.GET("", s.listFiles)
	files.DELETE("", s.deleteFile)
	files.GET("/download", s.download)
	files.GET("/revisions", s.revisions)
	files.GET("/link", s.presign)
	files.GET("/checksum/:checksum", s.findByChecksum)
	files.GET("/objects", s.storedObjects)
	files.DELETE("/versions/:id", s.deleteVersion)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
