package http

import (
	"encoding/json"
	"net/http"

	"math-race-service/internal/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func statusCode(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindBusiness:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// newErrorPayload hides the text of unclassified errors; those can carry infrastructure detail.
func newErrorPayload(err error) errorPayload {
	kind := domain.KindOf(err)
	if kind == domain.KindUnknown {
		return errorPayload{Type: kind.String(), Message: "internal error"}
	}
	return errorPayload{Type: kind.String(), Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCode(domain.KindOf(err)), newErrorPayload(err))
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorPayload{Type: "bad_request", Message: msg})
}
