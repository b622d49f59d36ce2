package collabhub

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors returned by the SDK.
var (
	// ErrNoToken is returned when no access token is found in the request.
	ErrNoToken = errors.New("collabhub: no access token provided")

	// ErrTokenInvalid is returned when the access token is invalid, expired or logged out.
	ErrTokenInvalid = errors.New("collabhub: token is invalid or expired")

	// ErrTokenForbidden is returned when the token is valid but the user lacks permission.
	ErrTokenForbidden = errors.New("collabhub: access forbidden")
)

// APIError represents an error response from the auth API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("collabhub: API error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

type apiErrorWrapper struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func parseAPIError(statusCode int, body []byte) error {
	var wrapper apiErrorWrapper
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Code != "" {
		return &APIError{
			StatusCode: statusCode,
			Code:       wrapper.Error.Code,
			Message:    wrapper.Error.Message,
			RequestID:  wrapper.Error.RequestID,
		}
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       "unknown",
		Message:    string(body),
	}
}

// IsAPIError checks whether err is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsMFARequired reports whether a login needs a second factor.
func IsMFARequired(err error) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.Code == "mfa_required"
}

// IsEmailNotVerified reports whether a login was refused because the account
// has not confirmed its email address.
func IsEmailNotVerified(err error) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.Code == "email_not_verified"
}
