package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error string      `json:"error"`
	Kind  models.Kind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Error().Err(err).Msg("response encoding failed")
		}
	}
}

// writeError maps a classified error onto an HTTP status. Client-correctable
// problems are 4xx; only internal faults are 500.
func writeError(w http.ResponseWriter, err error) {
	if repositories.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}

	kind := models.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case models.KindInvalidInput:
		status = http.StatusBadRequest
	case models.KindRateLimited:
		status = http.StatusTooManyRequests
	case models.KindQueueFull, models.KindServiceUnavailable:
		status = http.StatusServiceUnavailable
	case models.KindTransientTransport:
		status = http.StatusBadGateway
	case models.KindCancelled:
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error")
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

// maxBytesExceeded detects the body-limit error from http.MaxBytesReader.
func maxBytesExceeded(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
