/*
Package resp provides helper functions for constructing and sending standardized HTTP JSON responses.

It defines a unified JSON response structure, including a business code, message, and optional data,
and offers convenient wrappers for both success and error responses.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/logx"
)

// JSONResponse defines the standardized JSON response structure returned by the application to clients.
type JSONResponse struct {
	// Code is the business status code (0 for success, others for specific errors, see errs package).
	Code int `json:"code"`

	// Message is the client-friendly status description or error message.
	Message string `json:"message"`

	// Error is the error kind (e.g. "AuthenticationError"); empty on success.
	Error string `json:"error,omitempty"`

	// Fields lists field-level problems for validation and conflict errors.
	Fields []errs.FieldError `json:"fields,omitempty"`

	// Data is the optional response payload (e.g., data returned from a successful request).
	Data any `json:"data,omitempty"`
}

// RespondJSON is a generic response function used to set the Content-Type and send the JSON payload.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Ctx(r.Context()).Error().
			Err(err).
			Int("http_status", httpStatus).
			Msg("Error encoding JSON response")

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess sends a successful HTTP response (HTTP 200 OK).
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	respondOK(w, r, http.StatusOK, "success", data)
}

// RespondCreated sends a successful HTTP 201 response with a custom message.
func RespondCreated(w http.ResponseWriter, r *http.Request, message string, data any) {
	respondOK(w, r, http.StatusCreated, message, data)
}

// RespondMessage sends HTTP 200 with a custom human-readable message.
func RespondMessage(w http.ResponseWriter, r *http.Request, message string, data any) {
	respondOK(w, r, http.StatusOK, message, data)
}

func respondOK(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	res := JSONResponse{
		Code:    0,
		Message: message,
		Data:    data,
	}
	RespondJSON(w, r, status, res)
}

// RespondError sends an HTTP response containing custom error information.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	res := JSONResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
		Error:   customErr.Kind,
		Fields:  customErr.Fields,
	}
	RespondJSON(w, r, customErr.Status, res)
}
