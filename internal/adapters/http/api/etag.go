package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/okian/boxboard/internal/domain/snapshot"
)

func quoteETag(etag string) string {
	return `"` + etag + `"`
}

// notModified sets the ETag header and reports whether the request's
// If-None-Match already names it, in which case a 304 has been written.
func notModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", quoteETag(etag))
	inm := r.Header.Get("If-None-Match")
	if inm == "" {
		return false
	}
	for _, candidate := range strings.Split(inm, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || strings.Trim(candidate, `"`) == etag {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}

// combinedETag derives one etag from the per-key etags of a season read.
func combinedETag(byKey map[string]snapshot.Stored, missing []string) string {
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(byKey[k].ETag)
		b.WriteByte(';')
	}
	for _, k := range missing {
		b.WriteString(k)
		b.WriteString("=;")
	}
	return snapshot.ETag([]byte(b.String()))
}
