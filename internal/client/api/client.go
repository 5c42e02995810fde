// Package api is a typed client for the filekeeper HTTP API.
package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/netx"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// ErrChecksumMismatch is returned when downloaded bytes do not hash to the
// checksum the server announced.
var ErrChecksumMismatch = errors.New("checksum mismatch")

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for the server at baseURL. A zero timeout means none.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// HTTPClient is used for presigned fetches, which bypass the API.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and decodes a JSON response into out, when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if err := netx.CheckResponse(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// UploadRequest describes one upload. Size is -1 when unknown.
type UploadRequest struct {
	Body   io.Reader
	Size   int64
	Name   string
	Path   string
	Bucket string
}

// Upload streams r.Body to the server as a new version of r.Path.
func (c *Client) Upload(ctx context.Context, r UploadRequest) (*models.FileResponse, error) {
	fields := []netx.Field{{Name: "path", Value: r.Path}}
	if r.Bucket != "" {
		fields = append(fields, netx.Field{Name: "bucket", Value: r.Bucket})
	}
	if r.Name != "" {
		fields = append(fields, netx.Field{Name: "name", Value: r.Name})
	}
	if r.Size >= 0 {
		fields = append(fields, netx.Field{Name: "size", Value: strconv.FormatInt(r.Size, 10)})
	}

	fileName := r.Name
	if fileName == "" {
		fileName = "content"
	}
	body, contentType := netx.MultipartStream(fields, "file", fileName, r.Body)
	defer body.Close()

	req, err := c.newRequest(ctx, http.MethodPost, "/files/upload", nil, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var out models.FileResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadInfo is what the server announced about a downloaded version.
type DownloadInfo struct {
	Version  int64
	Checksum string
	Size     int64
}

// Download writes the version ref points at into w and verifies its
// checksum. On ErrChecksumMismatch w has already received the bad bytes.
func (c *Client) Download(ctx context.Context, ref string, w io.Writer) (*DownloadInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/download", url.Values{"ref": {ref}}, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if err := netx.CheckResponse(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	info := &DownloadInfo{Checksum: resp.Header.Get(common.ChecksumHeaderName)}
	info.Version, _ = strconv.ParseInt(resp.Header.Get(common.VersionHeaderName), 10, 64)

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), resp.Body)
	info.Size = n
	if err != nil {
		return info, fmt.Errorf("read body: %w", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); info.Checksum != "" && got != info.Checksum {
		return info, fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, info.Checksum)
	}
	return info, nil
}

func (c *Client) List(ctx context.Context) (*models.ListFilesResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files", nil, nil)
	if err != nil {
		return nil, err
	}
	var out models.ListFilesResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Revisions(ctx context.Context, ref string, limit int, includeDeleted bool) ([]models.FileVersionResponse, error) {
	q := url.Values{"ref": {ref}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if includeDeleted {
		q.Set("include_deleted", "true")
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/files/revisions", q, nil)
	if err != nil {
		return nil, err
	}
	var out []models.FileVersionResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context) (*models.ServiceStatusResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/ping", nil, nil)
	if err != nil {
		return nil, err
	}
	var out models.ServiceStatusResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Link asks for a presigned URL of ref. A zero ttl uses the server default.
func (c *Client) Link(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	q := url.Values{"ref": {ref}}
	if ttl > 0 {
		q.Set("ttl", strconv.Itoa(int(ttl.Seconds())))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/files/link", q, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) FindByChecksum(ctx context.Context, checksum string) (*models.FileVersionResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/checksum/"+url.PathEscape(checksum), nil, nil)
	if err != nil {
		return nil, err
	}
	var out models.FileVersionResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteVersion(ctx context.Context, versionID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/files/versions/"+url.PathEscape(versionID), nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) DeleteFile(ctx context.Context, ref string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/files", url.Values{"ref": {ref}}, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
