package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/mailspool/internal/model"
)

type advancedLoader interface {
	LoadAdvanced(ctx context.Context) model.AdvancedOptions
}

// RequireKey guards the admin API with the shared process key, supplied as
// an X-Process-Key header or a key query parameter. An empty configured key
// locks the API rather than opening it.
func RequireKey(settings advancedLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Process-Key")
			if key == "" {
				key = r.URL.Query().Get("key")
			}

			want := settings.LoadAdvanced(r.Context()).ProcessKey
			if want == "" || subtle.ConstantTimeCompare([]byte(key), []byte(want)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
