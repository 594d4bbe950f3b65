package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agentdeck/agentdeck/internal/domain"
	"github.com/agentdeck/agentdeck/internal/remote"
)

// bodyLimit caps request bodies; prompts are the largest payload we accept.
const bodyLimit = 1 << 20

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps service-layer errors onto HTTP statuses. Local input
// problems become 4xx; failures of the remote agent API surface as gateway
// errors so the dashboard can distinguish "you did it wrong" from "upstream
// is unhappy".
func writeDomainError(w http.ResponseWriter, err error, fallbackMsg string) {
	var (
		vErr   *remote.ValidationError
		tErr   *remote.TimeoutError
		nfErr  *remote.NotFoundError
		authE  *remote.AuthError
		inFlt  *remote.ErrPollInFlight
		remErr error
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, fallbackMsg)
	case errors.Is(err, domain.ErrNoActiveRun):
		writeError(w, http.StatusConflict, domain.ErrNoActiveRun.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
		writeError(w, http.StatusBadRequest, msg)
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Msg)
	case errors.As(err, &inFlt):
		writeError(w, http.StatusConflict, inFlt.Error())
	case errors.As(err, &nfErr):
		writeError(w, http.StatusNotFound, nfErr.Error())
	case errors.As(err, &authE):
		writeError(w, http.StatusBadGateway, authE.Error())
	case errors.As(err, &tErr):
		writeError(w, http.StatusGatewayTimeout, tErr.Error())
	case isRemoteFailure(err, &remErr):
		writeError(w, http.StatusBadGateway, remErr.Error())
	case strings.Contains(err.Error(), "SQLSTATE 23505"):
		writeError(w, http.StatusConflict, "resource already exists")
	default:
		slog.Error("unhandled domain error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// isRemoteFailure matches the remaining remote error types that all read as
// "upstream broke": bad statuses, undecodable bodies, exhausted retries.
func isRemoteFailure(err error, out *error) bool {
	var (
		sErr *remote.StatusError
		dErr *remote.DecodeError
		trE  *remote.TransientError
	)
	switch {
	case errors.As(err, &sErr):
		*out = sErr
	case errors.As(err, &dErr):
		*out = dErr
	case errors.As(err, &trE):
		*out = trE
	default:
		return false
	}
	return true
}

// writeInternalError logs the actual error server-side and returns a generic
// message to the client.
func writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
