package credential

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a Store that holds no credential.
	ErrNotFound = errors.New("no stored credential")

	// ErrCorrupt is returned by a Store whose contents cannot be decoded.
	ErrCorrupt = errors.New("stored credential is corrupt")

	// ErrRefreshRejected is wrapped by Refreshers when the provider refuses
	// the refresh token (for example invalid_grant). The credential must be
	// authorized again.
	ErrRefreshRejected = errors.New("refresh token rejected by provider")
)

// AuthError reports that no valid credential could be obtained.
type AuthError struct {
	// Op is the lifecycle step that failed: "authorize", "refresh" or "scope".
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential %s failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
