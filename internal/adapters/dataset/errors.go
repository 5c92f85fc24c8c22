package dataset

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUnknownEncoding = errors.New("unknown dataset encoding")
	ErrMissingColumn   = errors.New("missing dataset column")
	ErrMalformedRow    = errors.New("malformed dataset row")
)
