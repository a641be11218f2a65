package api

import (
	"fmt"
	"net/http"
	"strings"
)

// ApiError is the JSON body of every non-2xx response. Err stays
// server-side.
type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func newApiError(status int, err error) *ApiError {
	return &ApiError{
		StatusCode: status,
		Message:    strings.ToLower(http.StatusText(status)),
		Err:        err,
	}
}

func NewInternalServerError(err error) *ApiError {
	return newApiError(http.StatusInternalServerError, err)
}

func (s *NodeChatApp) writeError(w http.ResponseWriter, apiErr *ApiError) {
	s.writeJson(w, apiErr.StatusCode, apiErr)
}
