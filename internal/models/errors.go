package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to callers.
const (
	CodeNotAuthenticated   = "NOT_AUTHENTICATED"
	CodeInvalidEmailFormat = "INVALID_EMAIL_FORMAT"
	CodeEmptyContent       = "EMPTY_CONTENT"
	CodePostNotFound       = "POST_NOT_FOUND"
	CodeNotFound           = "NOT_FOUND"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeValidation         = "VALIDATION_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so the sentinels below work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotAuthenticated   = &AppError{Code: CodeNotAuthenticated, Message: "Authentication required"}
	ErrInvalidEmailFormat = &AppError{Code: CodeInvalidEmailFormat, Message: "Invalid email format"}
	ErrEmptyContent       = &AppError{Code: CodeEmptyContent, Message: "Content must not be empty"}
	ErrPostNotFound       = &AppError{Code: CodePostNotFound, Message: "Post not found"}
	ErrStorageUnavailable = &AppError{Code: CodeStorageUnavailable, Message: "Storage unavailable"}
)

func NewNotAuthenticatedError() *AppError {
	return &AppError{Code: CodeNotAuthenticated, Message: "Authentication required"}
}

// NewInvalidEmailFormatError never echoes the input back, since it may be an email address.
func NewInvalidEmailFormatError() *AppError {
	return &AppError{Code: CodeInvalidEmailFormat, Message: "Invalid email format"}
}

func NewEmptyContentError(what string) *AppError {
	return &AppError{Code: CodeEmptyContent, Message: fmt.Sprintf("%s content must not be empty", what)}
}

func NewPostNotFoundError(id string) *AppError {
	return &AppError{Code: CodePostNotFound, Message: fmt.Sprintf("Post with ID %s not found", id)}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewStorageUnavailableError(err error) *AppError {
	return &AppError{Code: CodeStorageUnavailable, Message: "Storage unavailable", Err: err}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// IsRetryable reports whether a caller may retry the failed operation unchanged.
// Only storage outages are transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		// Wrapped storage and internal causes may carry connection details.
		if appErr.Err != nil && appErr.Code != CodeInternal && appErr.Code != CodeStorageUnavailable {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
