package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsThroughWrapping(t *testing.T) {
	base := NewError(ErrBrokerRejected, "APBK0013: insufficient cash")
	wrapped := fmt.Errorf("failed to submit order: %w", base)

	assert.Equal(t, ErrBrokerRejected, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, ErrBrokerRejected))
	assert.False(t, IsKind(wrapped, ErrTimeout))
}

func TestKindOfDefaultsToStorage(t *testing.T) {
	assert.Equal(t, ErrStorage, KindOf(errors.New("disk on fire")))
}

func TestWrapErrorPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(ErrTimeout, cause, "quote lookup")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "quote lookup")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestOrderResultExecuted(t *testing.T) {
	assert.True(t, OrderResult{Status: OrderSuccess, Quantity: 1}.Executed())
	assert.False(t, OrderResult{Status: OrderSuccess, Quantity: 0}.Executed())
	assert.False(t, OrderResult{Status: OrderSkipped, Quantity: 5}.Executed())
	assert.False(t, OrderResult{Status: OrderFailed, Quantity: 5}.Executed())
}

func TestProfitRate(t *testing.T) {
	assert.InDelta(t, 0.1, ProfitRate(60000, 66000), 1e-9)
	assert.InDelta(t, -0.5, ProfitRate(100, 50), 1e-9)
	assert.Zero(t, ProfitRate(0, 100))
}
