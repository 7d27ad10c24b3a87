package oauth2

import (
	"fmt"
	"net/http"
)

// ErrorCode is one of the RFC 6749 error codes.
type ErrorCode string

const (
	InvalidRequest       ErrorCode = "invalid_request"
	InvalidClient        ErrorCode = "invalid_client"
	InvalidGrant         ErrorCode = "invalid_grant"
	UnauthorizedClient   ErrorCode = "unauthorized_client"
	UnsupportedGrantType ErrorCode = "unsupported_grant_type"
	InvalidScope         ErrorCode = "invalid_scope"
	AccessDenied         ErrorCode = "access_denied"
	ServerError          ErrorCode = "server_error"

	// InvalidToken is the RFC 6750 code used by the bearer protected userinfo endpoint.
	InvalidToken ErrorCode = "invalid_token"
)

// Error represents a standardized OAuth 2.0 error.
// Status is the HTTP status used when the error is delivered as a JSON body.
type Error struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
	State       string    `json:"state,omitempty"`
	Status      int       `json:"-"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithState returns a copy of the error carrying the request's state.
func (e *Error) WithState(state string) *Error {
	c := *e
	c.State = state
	return &c
}

// WithStatus returns a copy of the error delivered with a different HTTP status.
func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.Status = status
	return &c
}

func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description, Status: defaultStatus(code)}
}

func NewInvalidRequest(description string) *Error {
	return NewError(InvalidRequest, description)
}

func NewInvalidClient(description string) *Error {
	return NewError(InvalidClient, description)
}

func NewInvalidGrant(description string) *Error {
	return NewError(InvalidGrant, description)
}

func NewUnauthorizedClient(description string) *Error {
	return NewError(UnauthorizedClient, description)
}

func NewUnsupportedGrantType(description string) *Error {
	return NewError(UnsupportedGrantType, description)
}

func NewInvalidScope(description string) *Error {
	return NewError(InvalidScope, description)
}

func NewAccessDenied(description string) *Error {
	return NewError(AccessDenied, description)
}

func NewServerError(description string) *Error {
	return NewError(ServerError, description)
}

func NewInvalidToken(description string) *Error {
	return NewError(InvalidToken, description)
}

func defaultStatus(code ErrorCode) int {
	switch code {
	case InvalidClient, InvalidToken:
		return http.StatusUnauthorized
	case AccessDenied:
		return http.StatusForbidden
	case ServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
