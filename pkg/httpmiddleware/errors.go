package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// WriteError writes the JSON error envelope shared by every endpoint:
//
//	{"success": false, "message": ..., "errorKind": ..., "requestId": ...}
func WriteError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("message")
	e.Str(message)
	e.FieldStart("errorKind")
	e.Str(kind)
	if id := RequestIDFromContext(r.Context()); id != "" {
		e.FieldStart("requestId")
		e.Str(id)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
