package server

import (
	"errors"
	"net/http"

	"github.com/lazypower/crisp/internal/engagement"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Remaining *int   `json:"remaining,omitempty"`
}

// statusFor maps an engine outcome to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engagement.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, engagement.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engagement.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, engagement.ErrInvalidItem):
		return http.StatusBadRequest
	case errors.Is(err, engagement.ErrAlreadyInactive),
		errors.Is(err, engagement.ErrNotLiked),
		errors.Is(err, engagement.ErrItemExists):
		return http.StatusConflict
	case errors.Is(err, engagement.ErrConcurrentModification):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: engagement.Code(err), Message: err.Error()}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
		body.Message = "internal error"
	}
	var qe *engagement.QuotaError
	if errors.As(err, &qe) {
		body.Remaining = &qe.Remaining
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}
