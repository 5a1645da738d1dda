package doubaospeech

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an error reported by the Doubao speech service.
type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	LogID      string `json:"log_id,omitempty"`
	ReqID      string `json:"reqid,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("doubaospeech: %s (code=%d, log_id=%s, http_status=%d)",
		e.Message, e.Code, e.LogID, e.HTTPStatus)
}

// IsAuthError reports whether the credentials were rejected.
func (e *Error) IsAuthError() bool {
	return e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden || e.Code == CodeAuthError
}

// IsRateLimit reports whether the request was throttled.
func (e *Error) IsRateLimit() bool {
	return e.HTTPStatus == http.StatusTooManyRequests || e.Code == CodeRateLimit
}

// IsServerError reports a failure on the service side.
func (e *Error) IsServerError() bool {
	return e.HTTPStatus >= http.StatusInternalServerError || e.Code == CodeServerError
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	return e.IsRateLimit() || e.IsServerError()
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Response codes.
const (
	CodeSuccess     = 3000
	CodeParamError  = 3001
	CodeAuthError   = 3002
	CodeRateLimit   = 3003
	CodeQuotaExceed = 3004
	CodeServerError = 3005
	CodeASRSuccess  = 1000
)

// parseAPIError builds an *Error from a non-200 response body.
func parseAPIError(status int, body []byte, logID string) *Error {
	var resp struct {
		ReqID   string `json:"reqid"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Code == 0 {
		return &Error{Code: status, Message: string(body), HTTPStatus: status, LogID: logID}
	}
	return &Error{
		Code:       resp.Code,
		Message:    resp.Message,
		HTTPStatus: status,
		LogID:      logID,
		ReqID:      resp.ReqID,
	}
}
