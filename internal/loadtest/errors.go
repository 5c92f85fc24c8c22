package loadtest

import "errors"

var (
	ErrUnhealthy    = errors.New("service is not healthy")
	ErrInconsistent = errors.New("service responses are inconsistent")
	ErrStatus       = errors.New("unexpected status code")
)
