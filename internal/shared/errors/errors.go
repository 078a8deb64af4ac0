package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes surfaced by the service
const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeInternal                = "INTERNAL_ERROR"
	CodeProfileNotFound         = "PROFILE_NOT_FOUND"
	CodeCredentialNotConfigured = "CREDENTIAL_NOT_CONFIGURED"
	CodeDecryptionFailed        = "DECRYPTION_FAILED"
	CodeLoginFailed             = "LOGIN_FAILED"
	CodeActionFailed            = "ACTION_FAILED"
	CodeUnexpected              = "UNEXPECTED_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return newAppError(CodeValidation, message, err)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return newAppError(CodeInternal, message, err)
}

// NewProfileNotFoundError reports a missing or incomplete automation profile
func NewProfileNotFoundError(message string, err error) *AppError {
	return newAppError(CodeProfileNotFound, message, err)
}

// NewCredentialNotConfiguredError reports a missing portal secret or salt
func NewCredentialNotConfiguredError(message string, err error) *AppError {
	return newAppError(CodeCredentialNotConfigured, message, err)
}

// NewDecryptionFailedError reports a secret that could not be decrypted
func NewDecryptionFailedError(message string, err error) *AppError {
	return newAppError(CodeDecryptionFailed, message, err)
}

// NewLoginFailedError reports a portal login that did not reach the success indicator
func NewLoginFailedError(message string, err error) *AppError {
	return newAppError(CodeLoginFailed, message, err)
}

// NewActionFailedError reports an attendance action that could not be verified
func NewActionFailedError(message string, err error) *AppError {
	return newAppError(CodeActionFailed, message, err)
}

// NewUnexpectedError wraps anything outside the known failure modes
func NewUnexpectedError(message string, err error) *AppError {
	return newAppError(CodeUnexpected, message, err)
}

// CodeOf returns the code of the first AppError in err's chain, or "" when none is present
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
