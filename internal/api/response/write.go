package response

import (
	"encoding/json"
	"net/http"
)

// Health is the body of the health endpoint
type Health struct {
	Status string `json:"status"`
}

// JSON writes data as the JSON body with the given status
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}
