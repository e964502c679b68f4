package apperr

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

type stockErr struct{ id string }

func (e *stockErr) Error() string { return "insufficient stock for " + e.id }
func (e *stockErr) Kind() Kind    { return KindValidation }

func TestKindOf(t *testing.T) {
	notFound := New(KindNotFound, "order not found")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "sentinel", err: notFound, want: KindNotFound},
		{name: "wrapped sentinel", err: errors.Wrap(notFound, "get order"), want: KindNotFound},
		{name: "fmt wrapped typed", err: fmt.Errorf("place order: %w", &stockErr{id: "p1"}), want: KindValidation},
		{name: "plain error", err: errors.New("connection reset"), want: KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "order not found", Message(errors.Wrap(New(KindNotFound, "order not found"), "lookup")))
	assert.Equal(t, "insufficient stock for p1", Message(&stockErr{id: "p1"}))
	assert.Equal(t, "internal server error", Message(errors.New("dial tcp 10.0.0.1:5432: refused")))
}
