// Package webapi provides the HTTP transport for the generation service.
// This file contains the shared response writing atoms.
package webapi

import (
	"encoding/json"
	"net/http"

	"sdserve/imagegen"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Best effort; headers are already written
	_ = json.NewEncoder(w).Encode(data)
}

// writeEnvelope writes an error envelope using its embedded status code.
func writeEnvelope(w http.ResponseWriter, env imagegen.Envelope) {
	writeJSON(w, env.Code, env)
}

// writeAPIError coerces any error into an API error envelope. Unknown
// errors surface as internal defects with their cause withheld.
func writeAPIError(w http.ResponseWriter, err error) {
	writeEnvelope(w, imagegen.AsError(err).Envelope())
}

// writeMethodNotAllowed writes a 405 envelope listing the allowed method.
func writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeEnvelope(w, imagegen.Envelope{
		Error:  "method_not_allowed",
		Code:   http.StatusMethodNotAllowed,
		Detail: "Method not allowed",
	})
}
