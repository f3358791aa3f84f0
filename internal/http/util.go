package httpx

import (
	"net/http"
	"strconv"
)

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// parsePaging reads page and limit. Values below one become zero so the
// service applies its own defaults.
func parsePaging(r *http.Request) (page, limit int) {
	page = max(parseIntQuery(r, "page", 0), 0)
	limit = max(parseIntQuery(r, "limit", 0), 0)
	return page, limit
}
