package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")

	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPrincipalInactive  = errors.New("auth: principal is not active")

	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenRevoked = errors.New("auth: token revoked")
	// ErrTokenReused accompanies ErrTokenRevoked when an already rotated
	// refresh token is presented again.
	ErrTokenReused = errors.New("auth: refresh token reuse detected")

	// ErrStorageUnavailable wraps connection-level persistence failures.
	ErrStorageUnavailable = errors.New("auth: storage unavailable")
)
