package s3store

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/ripeart/CountryBlock/store"
)

// Error is a failed S3 call with the bucket and key it addressed.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("s3.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// S3 error codes mapped to store sentinels.
var (
	notFoundCodes = map[string]bool{
		"NoSuchKey": true,
		"NotFound":  true,
	}
	conflictCodes = map[string]bool{
		"PreconditionFailed":         true,
		"ConditionalRequestConflict": true,
	}
	deniedCodes = map[string]bool{
		"AccessDenied":          true,
		"InvalidAccessKeyId":    true,
		"SignatureDoesNotMatch": true,
		"ExpiredToken":          true,
		"InvalidToken":          true,
	}
)

// mapError wraps err in an *Error, adding the store sentinel its S3 error
// code corresponds to.
func mapError(op, bucket, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case notFoundCodes[code]:
			err = fmt.Errorf("%w: %w", store.ErrNotFound, err)
		case conflictCodes[code]:
			err = fmt.Errorf("%w: %w", store.ErrConflict, err)
		case deniedCodes[code]:
			err = fmt.Errorf("%w: %w", store.ErrAccessDenied, err)
		}
	}
	return &Error{Op: op, Bucket: bucket, Key: key, Err: err}
}
