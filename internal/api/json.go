package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Problem represents an RFC7807 problem details response body. Type carries
// a stable coldroute identifier so clients can switch on it without parsing
// titles.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemType derives the machine-readable tag from a problem title,
// e.g. "Too Many Requests" -> "coldroute:problem:too-many-requests".
func problemType(title string) string {
	return "coldroute:problem:" + strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     problemType(title),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}
