package edge

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/trace"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// Error codes returned in ErrorResponse bodies.
const (
	CodeUpstreamUnreachable = "UPSTREAM_UNREACHABLE"
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotReady            = "NOT_READY"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	resp := domain.ErrorResponse{Code: code, Message: message}
	if sc := trace.SpanFromContext(r.Context()).SpanContext(); sc.IsValid() {
		resp.TraceID = sc.TraceID().String()
	}
	writeJSON(w, status, resp)
}

// writeDomainError renders err, using the code and message of a wrapped
// DomainError when there is one.
func writeDomainError(w http.ResponseWriter, r *http.Request, status int, fallbackCode string, err error) {
	var derr *domain.DomainError
	if errors.As(err, &derr) && derr.Code != "" {
		writeError(w, r, status, derr.Code, derr.Error())
		return
	}
	writeError(w, r, status, fallbackCode, err.Error())
}
