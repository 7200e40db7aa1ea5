package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
