// Package netx holds the HTTP helpers the client builds its API calls on.
package netx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dmitrijs2005/filekeeper/internal/common"
)

// Field is a plain text form field.
type Field struct {
	Name  string
	Value string
}

// MultipartStream encodes fields followed by a single file part holding r.
// The body is produced while it is read, so r is never held in memory.
// The returned reader must be consumed or closed.
func MultipartStream(fields []Field, fileField, fileName string, r io.Reader) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			for _, f := range fields {
				if err := mw.WriteField(f.Name, f.Value); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile(fileField, fileName)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, r); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

// StatusError is a non-2xx response. It unwraps to the common sentinel
// matching the status code, so callers can use errors.Is.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return common.ErrorValidation
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusForbidden:
		return common.ErrorPermission
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusConflict:
		return common.ErrVersionConflict
	case http.StatusServiceUnavailable:
		return common.ErrorStoreTransport
	default:
		return common.ErrorInternal
	}
}

// CheckResponse returns nil for 2xx responses and a *StatusError otherwise,
// reading the {"error": "..."} body when there is one. The body is left
// open on success.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	var body struct {
		Error string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(b, &body) != nil || body.Error == "" {
		body.Error = string(b)
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// Fetch downloads url into w, typically a presigned object URL.
func Fetch(ctx context.Context, client *http.Client, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	if err := CheckResponse(resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) && len(se.Message) > 200 {
			se.Message = se.Message[:200]
		}
		return 0, err
	}
	defer resp.Body.Close()

	return io.Copy(w, resp.Body)
}
