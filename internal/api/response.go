package api

import (
	"encoding/json"
	"log"
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindUnauthenticated:    http.StatusUnauthorized,
	apperr.KindPermissionDenied:   http.StatusForbidden,
	apperr.KindInvalidArgument:    http.StatusBadRequest,
	apperr.KindNotFound:           http.StatusNotFound,
	apperr.KindFailedPrecondition: http.StatusConflict,
}

const codeInternal = "internal"

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("error encoding response: %v", err)
		}
	}
}

// jsonError writes a JSON error response. The code is derived from status.
func jsonError(w http.ResponseWriter, status int, message string) {
	code := codeInternal
	for kind, s := range statusByKind {
		if s == status {
			code = string(kind)
			break
		}
	}
	jsonResponse(w, status, errorResponse{Error: message, Code: code})
}

// writeError maps a classified error to its status. Unclassified errors are
// logged and reported as fallback with a 500.
func writeError(w http.ResponseWriter, err error, fallback string) {
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		slog.Error(fallback, "error", err)
		jsonResponse(w, http.StatusInternalServerError, errorResponse{Error: fallback, Code: codeInternal})
		return
	}
	jsonResponse(w, status, errorResponse{Error: apperr.Message(err), Code: string(kind)})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
