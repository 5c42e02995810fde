package blobstore

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/filekeeper/internal/common"
)

// Kind classifies a blob store failure.
type Kind int

const (
	KindTransport Kind = iota
	KindNotFound
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindPermission:
		return "permission denied"
	default:
		return "transport"
	}
}

// StoreError is returned by every Store operation.
// errors.Is matches it against common.ErrorNotFound, common.ErrorPermission
// or common.ErrorStoreTransport depending on Kind.
type StoreError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("blobstore %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == common.ErrorNotFound
	case KindPermission:
		return target == common.ErrorPermission
	default:
		return target == common.ErrorStoreTransport
	}
}

var (
	notFoundCodes = map[string]bool{
		"NoSuchKey":     true,
		"NoSuchBucket":  true,
		"NoSuchVersion": true,
		"NotFound":      true,
	}
	permissionCodes = map[string]bool{
		"AccessDenied":          true,
		"Forbidden":             true,
		"AllAccessDisabled":     true,
		"InvalidAccessKeyId":    true,
		"SignatureDoesNotMatch": true,
	}
)

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	kind := KindTransport
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case notFoundCodes[code]:
			kind = KindNotFound
		case permissionCodes[code]:
			kind = KindPermission
		}
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
