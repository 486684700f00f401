package errors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// AuthError is the error surface of the auth subsystem. Kind is a stable
// machine-readable identifier; Message is safe to show to an end user.
type AuthError struct {
	Kind    string
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	return e.Message
}

// WithMessage returns a copy carrying a different human message, keeping the
// kind and status stable.
func (e *AuthError) WithMessage(format string, args ...any) *AuthError {
	return &AuthError{
		Kind:    e.Kind,
		Message: fmt.Sprintf(format, args...),
		Status:  e.Status,
	}
}

var (
	ErrValidation = &AuthError{
		Kind:    "validation_error",
		Message: "invalid input",
		Status:  fiber.StatusBadRequest,
	}
	ErrEmailAlreadyInUse = &AuthError{
		Kind:    "email_in_use",
		Message: "this email is already in use",
		Status:  fiber.StatusConflict,
	}
	// ErrInvalidCredentials is deliberately identical for unknown-user and
	// wrong-password failures so responses carry no enumeration signal.
	ErrInvalidCredentials = &AuthError{
		Kind:    "invalid_credentials",
		Message: "email or password is incorrect",
		Status:  fiber.StatusUnauthorized,
	}
	ErrAccountLocked = &AuthError{
		Kind:    "account_locked",
		Message: "account is temporarily locked, please try again later",
		Status:  fiber.StatusTooManyRequests,
	}
	ErrTooManyRequests = &AuthError{
		Kind:    "rate_limited",
		Message: "too many requests, please try again later",
		Status:  fiber.StatusTooManyRequests,
	}
	ErrInvalidToken = &AuthError{
		Kind:    "invalid_token",
		Message: "invalid or expired token",
		Status:  fiber.StatusUnauthorized,
	}
	ErrInvalidVerificationToken = &AuthError{
		Kind:    "invalid_verification_token",
		Message: "invalid or expired verification token",
		Status:  fiber.StatusBadRequest,
	}
	// ErrSecurityViolation covers refresh-token reuse. The message asks for
	// re-authentication without revealing that reuse was detected.
	ErrSecurityViolation = &AuthError{
		Kind:    "security_violation",
		Message: "a security issue was detected, please sign in again",
		Status:  fiber.StatusUnauthorized,
	}
	ErrSessionNotFound = &AuthError{
		Kind:    "session_not_found",
		Message: "session not found",
		Status:  fiber.StatusBadRequest,
	}
	ErrUserNotFound = &AuthError{
		Kind:    "user_not_found",
		Message: "user not found",
		Status:  fiber.StatusBadRequest,
	}
)

// AsAuthError unwraps err to an *AuthError if one is in its chain.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
