// Package http holds the chi handlers of the dashboard API.
package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionHeader carries the dataset session identifier on every API call.
const SessionHeader = "X-Session-ID"

// sessionID returns the caller's session identifier. The "sid" query
// parameter is accepted as a fallback for iframe navigations, which cannot
// set headers. When both are absent a fresh ID is generated and echoed back
// so the client can adopt it.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		id = r.URL.Query().Get("sid")
	}
	if id == "" {
		id = uuid.New().String()
	}
	w.Header().Set(SessionHeader, id)
	return id
}

// parseDate parses a query-string date in YYYY-MM-DD or DD/MM/YYYY form.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse("02/01/2006", s)
}
