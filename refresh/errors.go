package refresh

import "errors"

var (
	// ErrNoRefreshToken means there is nothing to exchange. The session is
	// invalidated.
	ErrNoRefreshToken = errors.New("no refresh token stored")
	// ErrRefreshFailed wraps the cause of a failed exchange. The session is
	// invalidated.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrCancelled means the caller stopped waiting, or the coordinator was
	// closed while the exchange was in flight.
	ErrCancelled = errors.New("token refresh cancelled")
	// ErrSuperseded means the credentials were replaced or cleared while the
	// exchange was in flight. Its result is dropped and the newer
	// credentials are left alone.
	ErrSuperseded = errors.New("credentials changed during token refresh")
)
