package idempotency

import (
	"bytes"
	"context"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/emart-orders/internal/domain/apperr"
	"github.com/xenking/emart-orders/internal/domain/auth"
)

// Header carries the client chosen key.
const Header = "Idempotency-Key"

// ReplayedHeader is set on responses served from the cache.
const ReplayedHeader = "Idempotent-Replayed"

const maxKeyLen = 128

var (
	ErrInFlight   = apperr.New(apperr.KindConflict, "a request with this idempotency key is still in progress")
	ErrInvalidKey = apperr.New(apperr.KindValidation, "idempotency key must be at most 128 characters")
)

// Middleware caches 2xx responses per caller and key. Requests without the
// header pass through. Backend failures fail open: the request runs as if no
// key had been sent.
func Middleware(b Backend, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLen {
				onError(w, r, ErrInvalidKey)
				return
			}

			ctx := r.Context()
			lg := zctx.From(ctx)
			scope := "anonymous"
			if p, ok := auth.FromContext(ctx); ok {
				scope = p.UserID
			}

			cached, err := b.Lookup(ctx, scope, key)
			if err != nil {
				lg.Warn("Idempotency lookup failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if cached != nil {
				replay(w, cached)
				return
			}

			locked, err := b.Lock(ctx, scope, key)
			if err != nil {
				lg.Warn("Idempotency lock failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !locked {
				onError(w, r, ErrInFlight)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The client may be gone; the outcome must still be stored.
			ctx = context.WithoutCancel(ctx)
			if rec.status >= 200 && rec.status < 300 {
				err = b.Save(ctx, scope, key, Response{
					Status:      rec.status,
					ContentType: rec.Header().Get("Content-Type"),
					Body:        rec.body.Bytes(),
				})
			} else {
				err = b.Unlock(ctx, scope, key)
			}
			if err != nil {
				lg.Warn("Idempotency store failed", zap.Error(err))
			}
		})
	}
}

func replay(w http.ResponseWriter, resp *Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
