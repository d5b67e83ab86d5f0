package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/corvidlabs/streamchat/internal/domain"
)

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("httpapi: json encode failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

// respondDomainError maps a domain.Kind onto the HTTP status a client
// should react to, carrying RetryAfter through as Retry-After when the
// error is a rate limit.
func respondDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch domain.KindOf(err) {
	case domain.KindAuthMissing:
		status = http.StatusUnauthorized
	case domain.KindAuthInvalid:
		status = http.StatusUnauthorized
	case domain.KindRateLimited:
		status = http.StatusTooManyRequests
	case domain.KindQuotaExceeded:
		status = http.StatusPaymentRequired
	case domain.KindModelNotFound:
		status = http.StatusNotFound
	case domain.KindProviderUnavailable:
		status = http.StatusServiceUnavailable
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindAborted:
		status = http.StatusConflict
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindInvalidInput:
		status = http.StatusBadRequest
	case domain.KindInternal:
		status = http.StatusInternalServerError
	}

	if de, ok := err.(*domain.Error); ok && de.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(de.RetryAfter.Seconds())))
	}
	respondError(w, message, status)
}

func parseIntQuery(r *http.Request, name string, defaultValue int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
