package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// ActorHeader carries the caller id when a trusted gateway in front of the
// service has already authenticated it. Ignored when token auth is on.
const ActorHeader = "X-Actor-ID"

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindForbidden:
		return http.StatusForbidden
	case errors.KindInvariant:
		return http.StatusUnprocessableEntity
	case errors.KindConflict:
		return http.StatusConflict
	case errors.KindSettlement:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.ErrorWithContext(r.Context(), err, map[string]string{"path": r.URL.Path, "method": r.Method})
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: errorDetail{Code: errors.CodeOf(err), Message: msg}})
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError("body", "malformed JSON: "+err.Error(), nil)
	}
	return nil
}

// actor returns the caller attributed by the identify middleware, or the
// reason the request carries no usable identity
func (h *Handler) actor(r *http.Request) (string, error) {
	if id, ok := errors.ActorFrom(r.Context()); ok {
		return id, nil
	}
	return h.resolveActor(r)
}

// identify attributes the request to its caller when it carries a usable
// identity. Routes that need one fail later in actor.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := h.resolveActor(r); err == nil {
			r = r.WithContext(errors.WithActor(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) resolveActor(r *http.Request) (string, error) {
	if h.tokens != nil {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			return "", errors.Wrap(errors.ErrForbidden, "missing bearer token")
		}
		claims, err := h.tokens.Verify(raw)
		if err != nil {
			return "", err
		}
		return claims.ActorID(), nil
	}

	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		return "", errors.Wrapf(errors.ErrForbidden, "missing %s header", ActorHeader)
	}
	return id, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.NewValidationError(name, "must be a UUID", raw)
	}
	return id, nil
}

func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.NewValidationError("limit", "must be a positive integer", raw)
	}
	return n, nil
}
