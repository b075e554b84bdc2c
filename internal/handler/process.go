package handler

import (
	"context"
	"net/http"
)

type keyedProcessor interface {
	ProcessWithKey(ctx context.Context, key string)
}

// Process is the externally triggerable processing entry point. Whatever
// the key, it answers 204 with an empty body: a wrong key must give the
// caller nothing to distinguish from a completed pass.
func Process(p keyedProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.ProcessWithKey(r.Context(), r.URL.Query().Get("key"))
		w.WriteHeader(http.StatusNoContent)
	}
}
