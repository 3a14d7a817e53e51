package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/dropsched/internal/internaltypes"
)

const maxBody = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, internaltypes.ErrInvalidArgument), errors.Is(err, internaltypes.ErrEmptyPool):
		return http.StatusBadRequest
	case errors.Is(err, internaltypes.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, internaltypes.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, internaltypes.ErrAlreadyClaimed),
		errors.Is(err, internaltypes.ErrDuplicateClaimant),
		errors.Is(err, internaltypes.ErrAlreadyScheduled),
		errors.Is(err, internaltypes.ErrNotClaimed),
		errors.Is(err, internaltypes.ErrAlreadyDelivered):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail maps err to a status; 5xx details are logged, not returned.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", internaltypes.ErrInvalidArgument)
	}
	return nil
}

func entryIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid entry id", internaltypes.ErrInvalidArgument)
	}
	return id, nil
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}

// parseTime accepts RFC 3339 or a zone-less local time in the server's
// display location. Empty input yields the zero time.
func (s *Server) parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, s.loc()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q", internaltypes.ErrInvalidArgument, v)
}

func (s *Server) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s *Server) local(t time.Time) string {
	return t.In(s.loc()).Format("2006-01-02 15:04:05")
}

func (s *Server) localPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := s.local(*t)
	return &v
}
