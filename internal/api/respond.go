package api

import (
	"net/http"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(writer http.ResponseWriter, code int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		logging.Logger.Error("[respondJSON] failed to marshal response", zap.String("error", err.Error()))
		writer.WriteHeader(http.StatusInternalServerError)

		return
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(code)

	_, err = writer.Write(payload)
	if err != nil {
		logging.Logger.Warn("[respondJSON] failed to write response", zap.String("error", err.Error()))
	}
}

func respondError(writer http.ResponseWriter, code int, message string) {
	respondJSON(writer, code, errorResponse{Error: message})
}

func respondXML(writer http.ResponseWriter, code int, payload []byte) {
	writer.Header().Set("Content-Type", "application/xml")
	writer.WriteHeader(code)

	_, err := writer.Write(payload)
	if err != nil {
		logging.Logger.Warn("[respondXML] failed to write response", zap.String("error", err.Error()))
	}
}
