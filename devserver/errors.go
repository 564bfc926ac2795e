package devserver

import (
	"encoding/json"
	"net/http"

	"github.com/jmcleod/tokenkeeper/authapi"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, authapi.ErrorResponse{Message: msg})
}
