package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/medflow/stock-ledger/pkg/errors"
)

// APIVersion is stamped on every response envelope
const APIVersion = "v1"

// Response is a standard API response
type Response struct {
	Version string      `json:"version"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody represents an error in the response
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta contains list metadata
type Meta struct {
	Total  int    `json:"total"`
	Filter string `json:"filter,omitempty"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	write(w, statusCode, Response{
		Version: APIVersion,
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// JSONWithMeta sends a JSON response with metadata
func JSONWithMeta(w http.ResponseWriter, statusCode int, data interface{}, meta *Meta) {
	write(w, statusCode, Response{
		Version: APIVersion,
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
		Meta:    meta,
	})
}

// JSONWithError sends data alongside an error body. Bulk endpoints use it to
// return per-item results when some items failed.
func JSONWithError(w http.ResponseWriter, err error, data interface{}) {
	appErr := toAppError(err)
	write(w, appErr.StatusCode, Response{
		Version: APIVersion,
		Success: false,
		Data:    data,
		Error:   errorBody(appErr),
	})
}

// Error sends an error response
func Error(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	write(w, appErr.StatusCode, Response{
		Version: APIVersion,
		Success: false,
		Error:   errorBody(appErr),
	})
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// DecodeJSON decodes the request body into the provided struct
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.BadRequest("invalid JSON body")
	}
	return nil
}

func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return errors.Internal("an unexpected error occurred")
}

func errorBody(appErr *errors.AppError) *ErrorBody {
	return &ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}
}

func write(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}
