package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTransactionID(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		id := NewTransactionID()
		assert.True(t, strings.HasPrefix(id, "TXN-"), id)
		assert.Len(t, id, len("TXN-")+26)
		_, dup := seen[id]
		assert.False(t, dup, "duplicate transaction id %s", id)
		seen[id] = struct{}{}
	}
}

func TestMethodValid(t *testing.T) {
	assert.True(t, MethodCOD.Valid())
	assert.True(t, MethodOnline.Valid())
	assert.False(t, Method("Crypto").Valid())
}
