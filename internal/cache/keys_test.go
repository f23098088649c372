package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentKey(t *testing.T) {
	assert.Equal(t, "payment:data:PAY-2025-000001", PaymentKey("PAY-2025-000001"))
	assert.Equal(t, "payment:data:PAY-2025-000001", PaymentKey("  PAY-2025-000001  "))
}

func TestPaymentListKey(t *testing.T) {
	assert.Equal(t, "payment:list:status=all:page=0:size=20", PaymentListKey("", 0, 0))
	assert.Equal(t, "payment:list:status=pending:page=2:size=50", PaymentListKey("PENDING", 2, 50))
	// выход за границы нормализуется так же, как в хендлере
	assert.Equal(t, "payment:list:status=all:page=0:size=100", PaymentListKey("", -1, 500))
}

func TestPaymentListKeysSetKey(t *testing.T) {
	assert.Equal(t, "payment:list:keys", PaymentListKeysSetKey())
}
