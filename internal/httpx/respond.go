package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Envelope carries the extra top-level fields of a response body.
type Envelope map[string]any

// JSON writes v as a JSON body with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success writes a {"success":true,...} body merged with fields.
func Success(w http.ResponseWriter, status int, fields Envelope) {
	body := Envelope{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	JSON(w, status, body)
}

// ClientIP resolves the requester's address, preferring the forwarded
// address set by the edge proxy. Audit trails must record the caller, not
// the proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}

// Error writes a {"success":false,"message":...} body merged with fields.
// Storage error text never belongs in message; log it and send a generic one.
func Error(w http.ResponseWriter, status int, message string, fields ...Envelope) {
	body := Envelope{"success": false, "message": message}
	for _, f := range fields {
		for k, v := range f {
			body[k] = v
		}
	}
	JSON(w, status, body)
}
