package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/conorfennell/notedeck/internal/domain"
	"github.com/conorfennell/notedeck/internal/practice"
)

var (
	errBadRequest      = errors.New("bad request")
	errSessionNotFound = errors.New("practice session not found")
)

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithErr maps err onto a status code.
func (s *Server) respondWithErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.log.Error("Request failed", "error", err)
	}
	respondWithError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, practice.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, errSessionNotFound), errors.Is(err, domain.ErrEmptyResult):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, practice.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, practice.ErrNotActive),
		errors.Is(err, practice.ErrAlreadyAnswered),
		errors.Is(err, practice.ErrAtFirstQuestion),
		errors.Is(err, practice.ErrNothingSelected),
		errors.Is(err, practice.ErrRevealNotAllowed),
		errors.Is(err, practice.ErrLoading),
		errors.Is(err, practice.ErrStale):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
