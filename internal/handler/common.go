package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"p2p-ledger/internal/errors"
)

const maxBodyBytes = 1 << 20

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	if appErr.Retryable() {
		w.Header().Set("Retry-After", "1")
	}

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

// handleError writes err, reporting anything that is not an AppError as an
// internal error.
func handleError(w http.ResponseWriter, err error) {
	writeError(w, errors.FromError(err))
}

// decodeBody reads a JSON request body into v. Numbers are kept as
// json.Number so amounts are never routed through float64.
func decodeBody(r *http.Request, v interface{}) *errors.AppError {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error())
	}
	return nil
}
