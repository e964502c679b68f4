package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/emart-orders/internal/domain/apperr"
	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/pkg/httpmiddleware"
)

const maxBodySize = 1 << 20

var (
	errUnauthorized = apperr.New(apperr.KindAuthorization, "you are not authorized")
	errBodyTooLarge = apperr.New(apperr.KindValidation, "request body is too large")
)

// envelope is the success body of every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Meta    any    `json:"meta,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, message string, data, meta any) {
	body, err := json.Marshal(envelope{Success: true, Message: message, Data: data, Meta: meta})
	if err != nil {
		writeError(w, r, errors.Wrap(err, "encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the error envelope for err. Internal errors are logged
// and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	switch {
	case errors.Is(err, errUnauthorized):
		status = http.StatusUnauthorized
	case status >= http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	httpmiddleware.WriteError(w, r, status, string(kind), apperr.Message(err))
}

// readBody reads at most maxBodySize bytes of the request body.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(body) > maxBodySize {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// actor returns the authenticated caller. The auth middleware guarantees one
// on every /api/v1 route.
func actor(r *http.Request) (auth.Principal, error) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Principal{}, errUnauthorized
	}
	return p, nil
}
