package orderapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"git.platform.alem.school/amibragim/order-events/internal/shared/contracts"
	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
)

// Correlation reads X-Correlation-Id or generates one, stores it in the request
// context and echoes it on the response.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(contracts.HeaderCorrelationID))
		if id == "" {
			id = newCorrelationID()
		}
		w.Header().Set(contracts.HeaderCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithCorrelationID(r.Context(), id)))
	})
}

// newCorrelationID returns a GUID as 32 hex characters without dashes.
func newCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
