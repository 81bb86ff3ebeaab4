// Package shared holds the JSON envelope every HTTP handler writes.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "rightsledger/pkg/domain-errors"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Retryable        bool   `json:"retryable,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into a status code and error envelope. Errors
// without a domain code are reported as internal without leaking details.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:            string(dErrors.CodeInternal),
			ErrorDescription: "internal server error",
		})
		return
	}
	desc := de.Message
	if de.Code == dErrors.CodeInternal {
		desc = "internal server error"
	}
	WriteJSON(w, dErrors.HTTPStatus(de.Code), ErrorResponse{
		Error:            string(de.Code),
		ErrorDescription: desc,
		Retryable:        dErrors.Retryable(err),
	})
}
