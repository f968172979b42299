package scim

import (
	"net/http"
	"strconv"
)

// scimType values defined by RFC 7644 Section 3.12
const (
	TypeInvalidValue  = "invalidValue"
	TypeInvalidFilter = "invalidFilter"
	TypeInvalidPath   = "invalidPath"
	TypeInvalidToken  = "invalidToken"
	TypeUniqueness    = "uniqueness"
)

// Error is the RFC 7644 error body. Every SCIM failure in this package is
// built through one of the constructors below so the wire shape stays uniform.
type Error struct {
	Schemas  []string `json:"schemas"`
	Detail   string   `json:"detail"`
	Status   string   `json:"status"`
	ScimType string   `json:"scimType,omitempty"`

	statusCode int
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Detail
}

// StatusCode returns the HTTP status to respond with
func (e *Error) StatusCode() int {
	return e.statusCode
}

// NewError creates a SCIM error with the given HTTP status. scimType may be
// empty; it is omitted from the body when no standard value applies.
func NewError(status int, scimType, detail string) *Error {
	return &Error{
		Schemas:    []string{SchemaError},
		Detail:     detail,
		Status:     strconv.Itoa(status),
		ScimType:   scimType,
		statusCode: status,
	}
}

// ErrNotFoundResource creates the 404 body for a missing resource id.
// No scimType: RFC 7644 defines none for 404.
func ErrNotFoundResource(id string) *Error {
	return NewError(http.StatusNotFound, "", "Resource "+id+" not found.")
}

// ErrInvalidValue creates a 400 invalidValue error
func ErrInvalidValue(detail string) *Error {
	return NewError(http.StatusBadRequest, TypeInvalidValue, detail)
}

// ErrInvalidFilter creates a 400 invalidFilter error
func ErrInvalidFilter(detail string) *Error {
	return NewError(http.StatusBadRequest, TypeInvalidFilter, detail)
}

// ErrInvalidPath creates a 400 invalidPath error
func ErrInvalidPath(detail string) *Error {
	return NewError(http.StatusBadRequest, TypeInvalidPath, detail)
}

// ErrUnsupportedOperation creates a 400 error for patch operations outside
// add/replace/remove. No scimType applies.
func ErrUnsupportedOperation(detail string) *Error {
	return NewError(http.StatusBadRequest, "", detail)
}

// ErrConflict creates a 409 uniqueness error
func ErrConflict(detail string) *Error {
	return NewError(http.StatusConflict, TypeUniqueness, detail)
}

// ErrUnauthorized creates a 401 invalidToken error
func ErrUnauthorized(detail string) *Error {
	return NewError(http.StatusUnauthorized, TypeInvalidToken, detail)
}

// ErrInternal creates a 500 error
func ErrInternal(detail string) *Error {
	return NewError(http.StatusInternalServerError, "", detail)
}

// AsError converts any error into a SCIM error, wrapping unknown errors as 500
func AsError(err error) *Error {
	if scimErr, ok := err.(*Error); ok {
		return scimErr
	}
	return ErrInternal("An internal error occurred")
}
