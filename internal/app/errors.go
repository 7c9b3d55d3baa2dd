package app

import "errors"

var (
	// ErrNotFound is returned when a room, message, or user lookup by
	// identifier resolves nothing.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when an operation that requires a
	// logged-in identity receives the anonymous one.
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden is returned when the acting identity is authenticated
	// but does not own the resource being mutated.
	ErrForbidden = errors.New("you are not allowed to do that")

	// ErrInvalidCredentials is shown to end users on login failure and is
	// deliberately identical for unknown email and wrong password.
	ErrInvalidCredentials = errors.New("email or password does not match")

	ErrEmailAlreadyExists  = errors.New("email already exists")
	ErrRegistrationInvalid = errors.New("email, name and password are required")
)
