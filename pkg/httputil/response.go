package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
// It sets the Content-Type header to application/json and encodes the value as JSON.
// Any encoding errors are silently ignored (best-effort).
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response in the chain API's shape, with the
// message as both the exception text and its single detail.
func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteChainError(w, code, ChainException{Code: 0, Name: "exception", What: msg, Message: msg})
}

// ChainException describes a failure the way the chain API reports it.
type ChainException struct {
	Code    int    // exception code, e.g. 3050003
	Name    string // e.g. eosio_assert_message_exception
	What    string // short description
	Message string // detail message, the text clients surface
}

// ChainErrorBody is the JSON body of a chain API error.
type ChainErrorBody struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Error   ChainDetail `json:"error"`
}

// ChainDetail is the "error" member of ChainErrorBody.
type ChainDetail struct {
	Code    int             `json:"code"`
	Name    string          `json:"name"`
	What    string          `json:"what"`
	Details []DetailMessage `json:"details"`
}

// DetailMessage is one entry of ChainDetail.Details.
type DetailMessage struct {
	Message    string `json:"message"`
	File       string `json:"file"`
	LineNumber int    `json:"line_number"`
	Method     string `json:"method"`
}

// WriteChainError writes exc with the given HTTP status.
func WriteChainError(w http.ResponseWriter, status int, exc ChainException) {
	body := ChainErrorBody{
		Code:    status,
		Message: http.StatusText(status),
		Error: ChainDetail{
			Code:    exc.Code,
			Name:    exc.Name,
			What:    exc.What,
			Details: []DetailMessage{},
		},
	}
	if exc.Message != "" {
		body.Error.Details = append(body.Error.Details, DetailMessage{Message: exc.Message})
	}
	WriteJSON(w, status, body)
}
