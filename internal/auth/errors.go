package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("auth: not found")

	// ErrPasswordMismatch is a validation failure on confirmPassword.
	ErrPasswordMismatch = errors.New("auth: passwords do not match")

	ErrDuplicate         = errors.New("auth: resource already exists")
	ErrDuplicateEmail    = fmt.Errorf("%w: email is already registered", ErrDuplicate)
	ErrDuplicateUsername = fmt.Errorf("%w: username is already taken", ErrDuplicate)

	ErrInvalidCredentials  = errors.New("auth: invalid email or password")
	ErrInvalidRefreshToken = errors.New("auth: refresh token is invalid, expired or revoked")
	ErrUnauthenticated     = errors.New("auth: authentication required")
	ErrPrincipalNotFound   = errors.New("auth: principal not found")
	ErrAccountInactive     = errors.New("auth: account is disabled or locked")
	ErrAccessDenied        = errors.New("auth: access denied")

	// Token verification failures.
	ErrInvalidSignature = errors.New("auth: token signature is invalid")
	ErrTokenExpired     = errors.New("auth: token is expired")
	ErrMalformedToken   = errors.New("auth: token is malformed")
)
