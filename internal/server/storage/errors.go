package storage

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/filecatalog/internal/common"
)

var (
	notFoundCodes = map[string]bool{
		"NoSuchBucket": true,
	}
	unauthorizedCodes = map[string]bool{
		"InvalidAccessKeyId":    true,
		"SignatureDoesNotMatch": true,
		"AccessDenied":          true,
		"ExpiredToken":          true,
	}
)

// classify tags S3 API errors with the matching common sentinel so callers
// can tell a missing bucket or rejected identity from a transport failure.
// Other errors are returned unchanged.
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch code := apiErr.ErrorCode(); {
	case notFoundCodes[code]:
		return fmt.Errorf("%w: %w", common.ErrorNotFound, err)
	case unauthorizedCodes[code]:
		return fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}
	return err
}
