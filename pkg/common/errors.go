package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	CodeInvalidPayload          = "invalid_payload"
	CodeInvalidCredentials      = "invalid_credentials"
	CodeRegisterFailed          = "register_failed"
	CodeInvalidUpstreamResponse = "invalid_upstream_response"
	CodeUpstreamUnavailable     = "upstream_unavailable"
)

type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorBody is the uniform client error shape.
type ErrorBody struct {
	Code    string  `json:"code,omitempty"`
	Message string  `json:"message"`
	Issues  []Issue `json:"issues,omitempty"`
}

type ValidationError struct {
	Issues []Issue
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %d issue(s)", len(err.Issues))
}

type AuthenticationError struct {
	Reason string
}

func (err *AuthenticationError) Error() string {
	if err.Reason == "" {
		return "unauthorized"
	}
	return "unauthorized: " + err.Reason
}

type AuthorizationError struct {
	Role string
}

func (err *AuthorizationError) Error() string {
	return fmt.Sprintf("forbidden for role %q", err.Role)
}

// UpstreamError is a reachable backend answering with a non-2xx status.
type UpstreamError struct {
	Status  int
	Code    string
	Message string
}

func (err *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", err.Status, err.Message)
}

// UpstreamUnavailableError covers transport failures and bodies that do not
// have the shape a caller required.
type UpstreamUnavailableError struct {
	Code  string
	Cause error
}

func (err *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("upstream unavailable: %v", err.Cause)
}

func (err *UpstreamUnavailableError) Unwrap() error {
	return err.Cause
}

func NewErr(stage string, reason interface{}) error {
	if cause, ok := reason.(error); ok {
		return fmt.Errorf("%v Reason: %w", stage, cause)
	}
	return fmt.Errorf("%v Reason: %v", stage, reason)
}

func WriteJSON(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		logrus.Warnf("Writing json response error. Reason: %v", err)
	}
}

// WriteError renders any error of the taxonomy; anything else is a 500.
func WriteError(writer http.ResponseWriter, err error) {
	status, body := renderError(err)
	WriteJSON(writer, status, body)
}

func renderError(err error) (int, ErrorBody) {
	var validationErr *ValidationError
	var authenticationErr *AuthenticationError
	var authorizationErr *AuthorizationError
	var upstreamErr *UpstreamError
	var unavailableErr *UpstreamUnavailableError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorBody{
			Code:    CodeInvalidPayload,
			Message: "Invalid payload",
			Issues:  validationErr.Issues,
		}
	case errors.As(err, &authenticationErr):
		return http.StatusUnauthorized, ErrorBody{Message: "Unauthorized"}
	case errors.As(err, &authorizationErr):
		return http.StatusForbidden, ErrorBody{Message: "Forbidden"}
	case errors.As(err, &upstreamErr):
		return upstreamErr.Status, ErrorBody{Code: upstreamErr.Code, Message: upstreamErr.Message}
	case errors.As(err, &unavailableErr):
		code := unavailableErr.Code
		if code == "" {
			code = CodeUpstreamUnavailable
		}
		message := "Upstream unavailable"
		if code == CodeInvalidUpstreamResponse {
			message = "Invalid upstream response"
		}
		return http.StatusBadGateway, ErrorBody{Code: code, Message: message}
	default:
		return http.StatusInternalServerError, ErrorBody{Message: "Internal error"}
	}
}
