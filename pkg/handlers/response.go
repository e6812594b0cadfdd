package handlers

import (
	"encoding/json"
	"net/http"
)

// DataResponse is the success body of the query endpoint. Data is null when
// no statement produced a result.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorEnvelope is the failure body of the query endpoint.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the message and a code for clients that switch on it.
type ErrorBody struct {
	Message    string          `json:"message"`
	Extensions ErrorExtensions `json:"extensions"`
}

type ErrorExtensions struct {
	Code string `json:"code"`
}

// ErrorResponse writes an error envelope whose code is the status text,
// e.g. "Bad Request" for 400, and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, ErrorEnvelope{
		Error: ErrorBody{
			Message:    message,
			Extensions: ErrorExtensions{Code: http.StatusText(statusCode)},
		},
	})
}

// WriteData writes a 200 response wrapping data.
func WriteData(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, DataResponse{Data: data})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}
