package rest

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// serviceStatus always answers 200 when the process is up; the body tells
// which backing store is failing.
func (s *Server) serviceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.files.GetServiceStatus(c.Request.Context()))
}

// upload streams a multipart body. The text fields (path, bucket, name,
// size) must come before the "file" part, which is passed to the service
// without being buffered.
func (s *Server) upload(c *gin.Context) {
	mr, err := c.Request.MultipartReader()
	if err != nil {
		s.abort(c, fmt.Errorf("%w: %w", common.ErrorValidation, err))
		return
	}

	in := services.UploadInput{
		Bucket:  s.defaultBucket,
		Size:    -1,
		OwnerID: c.GetString(ownerKey),
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.abort(c, fmt.Errorf("%w: missing file part", common.ErrorValidation))
			return
		}
		if err != nil {
			s.abort(c, fmt.Errorf("%w: %w", common.ErrorValidation, err))
			return
		}

		if part.FormName() == "file" {
			if in.Name == "" {
				in.Name = part.FileName()
			}
			in.Payload = part
			break
		}

		if err := readField(part, &in); err != nil {
			s.abort(c, err)
			return
		}
	}

	resp, err := s.files.Upload(c.Request.Context(), in)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

const maxFieldSize = 4096

func readField(part *multipart.Part, in *services.UploadInput) error {
	defer part.Close()
	b, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}
	if len(b) > maxFieldSize {
		return fmt.Errorf("%w: field %s too long", common.ErrorValidation, part.FormName())
	}
	v := string(b)

	switch part.FormName() {
	case "path":
		in.Path = v
	case "bucket":
		if v != "" {
			in.Bucket = v
		}
	case "name":
		in.Name = v
	case "size":
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: size %q", common.ErrorValidation, v)
		}
		in.Size = n
	}
	return nil
}

func (s *Server) reference(c *gin.Context) (services.Reference, bool) {
	ref, err := services.ParseReference(c.Query("ref"))
	if err != nil {
		s.abort(c, err)
		return services.Reference{}, false
	}
	return ref, true
}

func (s *Server) download(c *gin.Context) {
	ref, ok := s.reference(c)
	if !ok {
		return
	}

	stream, v, err := s.files.Download(c.Request.Context(), ref)
	if err != nil {
		s.abort(c, err)
		return
	}
	defer stream.Close()

	c.Header(common.ChecksumHeaderName, v.Checksum)
	c.Header(common.VersionHeaderName, strconv.FormatInt(v.Version, 10))
	if stream.Size >= 0 {
		c.Header("Content-Length", strconv.FormatInt(stream.Size, 10))
	}
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)

	for chunk, err := range stream.All() {
		if err != nil {
			// headers are gone already, the client sees a short body
			s.logger.Error(c.Request.Context(), "download interrupted", "version_id", v.ID, "error", err)
			_ = c.Error(err)
			return
		}
		if _, err := c.Writer.Write(chunk); err != nil {
			_ = c.Error(err)
			return
		}
		c.Writer.Flush()
	}
}

func (s *Server) listFiles(c *gin.Context) {
	resp, err := s.files.ListFiles(c.Request.Context(), c.GetString(ownerKey))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type revisionsQuery struct {
	Limit          int  `form:"limit" binding:"min=0"`
	IncludeDeleted bool `form:"include_deleted"`
}

func (s *Server) revisions(c *gin.Context) {
	ref, ok := s.reference(c)
	if !ok {
		return
	}
	var q revisionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.abort(c, fmt.Errorf("%w: %w", common.ErrorValidation, err))
		return
	}

	revs, err := s.files.GetRevisions(c.Request.Context(), ref, q.Limit, q.IncludeDeleted)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, revs)
}

type linkQuery struct {
	TTL int `form:"ttl" binding:"min=0,max=604800"`
}

func (s *Server) presign(c *gin.Context) {
	ref, ok := s.reference(c)
	if !ok {
		return
	}
	var q linkQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.abort(c, fmt.Errorf("%w: %w", common.ErrorValidation, err))
		return
	}

	url, err := s.files.PresignDownload(c.Request.Context(), ref, time.Duration(q.TTL)*time.Second)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) findByChecksum(c *gin.Context) {
	v, err := s.files.FindByChecksum(c.Request.Context(), c.Param("checksum"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) storedObjects(c *gin.Context) {
	objs, err := s.files.ListStoredObjects(c.Request.Context(), c.DefaultQuery("bucket", s.defaultBucket), c.Query("path"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, objs)
}

func (s *Server) deleteVersion(c *gin.Context) {
	if err := s.files.DeleteVersion(c.Request.Context(), c.GetString(ownerKey), c.Param("id")); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteFile(c *gin.Context) {
	ref, ok := s.reference(c)
	if !ok {
		return
	}
	if err := s.files.DeleteFile(c.Request.Context(), c.GetString(ownerKey), ref); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
