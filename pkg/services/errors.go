// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dukex/blockflow/pkg/graph"
	"github.com/go-playground/validator/v10"
)

// Error classes. Every error a service returns wraps exactly one of them.
var (
	// ErrValidation marks malformed or missing input (400 Bad Request).
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated marks a request without caller identity (401 Unauthorized).
	ErrUnauthenticated = errors.New("caller identity is required")

	// ErrNotFound marks a referenced workflow, workspace or checkpoint that does not exist (404 Not Found).
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied marks a caller without the required permission (403 Forbidden).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict marks a request refused to protect persisted data (409 Conflict).
	ErrConflict = errors.New("conflict")

	// ErrDependency marks a failing persistence collaborator (500 Internal Server Error).
	ErrDependency = errors.New("dependency failure")
)

// FieldError is one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string       // Operation name
	Code    string       // Error code for API responses
	Message string       // Human-readable message
	Fields  []FieldError // Rejected fields, for validation errors
	Err     error        // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnauthenticatedError checks if an error should return HTTP 401.
func IsUnauthenticatedError(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermissionError checks if an error should return HTTP 403.
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// FieldErrors returns the rejected fields carried by err, if any.
func FieldErrors(err error) []FieldError {
	var serr *ServiceError
	if errors.As(err, &serr) {
		return serr.Fields
	}

	return nil
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, fields ...FieldError) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Fields:  fields,
		Err:     ErrValidation,
	}
}

func unauthenticated(op string) *ServiceError {
	return &ServiceError{Op: op, Code: "unauthorized", Message: "caller identity is required", Err: ErrUnauthenticated}
}

func notFound(op, code, message string) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Err: ErrNotFound}
}

func forbidden(op, message string) *ServiceError {
	return &ServiceError{Op: op, Code: "forbidden", Message: message, Err: ErrPermissionDenied}
}

func conflict(op, code, message string) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Err: ErrConflict}
}

func dependency(op string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: "internal_error", Err: fmt.Errorf("%w: %w", ErrDependency, err)}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// validateStruct runs the struct tags of req and converts failures to a validation error.
func validateStruct(op string, req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError(op, "validation_error", err.Error())
	}

	fields := make([]FieldError, 0, len(verrs))

	for _, fe := range verrs {
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		fields = append(fields, FieldError{Field: field, Message: describe(fe)})
	}

	return NewValidationError(op, "validation_error", "request is invalid", fields...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// graphFields prefixes the violations of a graph validation error with the field path
// of the state that produced them.
func graphFields(prefix string, err error) []FieldError {
	var gerr *graph.ValidationError
	if !errors.As(err, &gerr) {
		return []FieldError{{Field: prefix, Message: err.Error()}}
	}

	fields := make([]FieldError, 0, len(gerr.Violations))
	for _, v := range gerr.Violations {
		fields = append(fields, FieldError{Field: prefix + "." + v.Field, Message: v.Message})
	}

	return fields
}
