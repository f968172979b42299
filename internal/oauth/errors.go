package oauth

import "net/http"

// TokenError is the RFC 6749 Section 5.2 token endpoint error body
type TokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`

	statusCode int
}

// Error implements the error interface
func (e *TokenError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// StatusCode returns the HTTP status to respond with
func (e *TokenError) StatusCode() int {
	return e.statusCode
}

// ErrInvalidRequest creates an invalid_request error (400)
func ErrInvalidRequest(description string) *TokenError {
	return &TokenError{Code: "invalid_request", Description: description, statusCode: http.StatusBadRequest}
}

// ErrUnsupportedGrantType creates an unsupported_grant_type error (400)
func ErrUnsupportedGrantType(grantType string) *TokenError {
	return &TokenError{
		Code:        "unsupported_grant_type",
		Description: "Only the client_credentials grant is supported, got: " + grantType,
		statusCode:  http.StatusBadRequest,
	}
}

// ErrInvalidClient creates an invalid_client error (401)
func ErrInvalidClient() *TokenError {
	return &TokenError{
		Code:        "invalid_client",
		Description: "Client authentication failed",
		statusCode:  http.StatusUnauthorized,
	}
}
