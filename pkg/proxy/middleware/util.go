package middleware

import (
	"encoding/json"
	"net/http"
)

// writeStatic encodes a small response body, ignoring write errors
// (the status is already committed).
func writeStatic(w http.ResponseWriter, body any) {
	_ = json.NewEncoder(w).Encode(body)
}
