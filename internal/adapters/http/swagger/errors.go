package swagger

import "errors"

// Error constants.
var (
	ErrMethod = errors.New("method not allowed")
)
