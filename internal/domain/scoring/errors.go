package scoring

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrArtifactMissing = errors.New("artifact not found")
	ErrInvalidArtifact = errors.New("invalid artifact")
	ErrUnknownFormat   = errors.New("unknown model format")
	ErrNonFinite       = errors.New("non-finite value")
)

// StartupError reports an artifact that could not be loaded. The process
// must not serve requests after one.
type StartupError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("load %s %q: %v", e.Artifact, e.Path, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArtifact, fmt.Sprintf(format, args...))
}
