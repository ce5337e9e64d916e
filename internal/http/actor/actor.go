// Package actor resolves who issued a request for the audit trail.
package actor

import (
	"context"
	"net/http"
	"strings"

	"github.com/institutoandes/cobranza/internal/audit"
)

const header = "X-Actor"

type ctxKey struct{}

// Middleware reads the X-Actor header into an audit.Actor and stores it on
// the request context. A missing header is allowed; the audit layer
// records such entries as "system".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := audit.Actor{
			Name:   strings.TrimSpace(r.Header.Get(header)),
			Origin: r.RemoteAddr,
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, a)))
	})
}

// From returns the actor stored by Middleware, or a zero actor outside it.
func From(ctx context.Context) audit.Actor {
	a, _ := ctx.Value(ctxKey{}).(audit.Actor)
	return a
}
