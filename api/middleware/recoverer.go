package middleware

import (
	"fmt"
	"net/http"

	"github.com/lectern-edu/lectern-payments/api/responses"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
)

// Recoverer converts a handler panic into an INTERNAL_ERROR response.
// http.ErrAbortHandler keeps propagating so the server drops the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				switch {
				case rec == nil:
					return
				case rec == http.ErrAbortHandler:
					panic(rec)
				}
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithField(ctx, "panic", fmt.Sprint(rec))
				}
				err := pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("recovered: %v", rec), "handler panic")
				responses.WriteError(ctx, logg, w, err)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
