package cache

import (
	"fmt"
	"strings"
)

// GET /api/v1/payments/{payment_id}
// payment:data:{payment_id}
func PaymentKey(paymentID string) string {
	return fmt.Sprintf("payment:data:%s", strings.TrimSpace(paymentID))
}

// GET /api/v1/payments
// payment:list:status={status}:page={page}:size={size}
func PaymentListKey(status string, page, size int) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		s = "all"
	}
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return fmt.Sprintf("payment:list:status=%s:page=%d:size=%d", s, page, size)
}

// Набор всех list-ключей — инвалидация без SCAN.
func PaymentListKeysSetKey() string {
	return "payment:list:keys"
}
