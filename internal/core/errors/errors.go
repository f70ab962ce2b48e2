package errors

import "errors"

// Gateway errors. Verification failures resolve entirely inside the upgrade
// phase; nothing here ever reaches business logic.
var (
	// Authentication & authorization
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRoleMismatch = errors.New("token role does not match route")

	// Device route: the path segment and the token's device claim disagree.
	// Worth logging as a possible credential-misuse signal.
	ErrDeviceMismatch = errors.New("device id does not match token")

	// Generic
	ErrRouteNotFound = errors.New("route not found")
)

// AppError wraps errors with the HTTP status used when rejecting an upgrade.
// Rejections are written as a bare status line, no body, so nothing beyond
// the numeric code leaks over an unauthenticated channel.
type AppError struct {
	Err        error
	Code       string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewUnauthorizedError(err error) *AppError {
	return &AppError{
		Err:        err,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewForbiddenError(err error) *AppError {
	return &AppError{
		Err:        err,
		Code:       "FORBIDDEN",
		StatusCode: 403,
	}
}

func NewNotFoundError(err error) *AppError {
	return &AppError{
		Err:        err,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}
