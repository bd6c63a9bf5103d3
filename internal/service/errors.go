package service

import "errors"

// Validation failures carry specific messages; security-sensitive failures
// are deliberately generic so the API cannot be used to enumerate accounts
// or probe tokens.
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrEmailTaken       = errors.New("email already registered")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountSuspended   = errors.New("account is suspended")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrEmailNotVerified   = errors.New("email not verified")

	// ErrInvalidToken covers missing, expired and already-consumed
	// verification/reset tokens alike.
	ErrInvalidToken = errors.New("invalid or expired token")

	ErrQuotaExceeded = errors.New("usage quota exceeded")

	ErrUserNotFound       = errors.New("user not found")
	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnknownTool        = errors.New("unknown tool")
)
