package validator

import (
	"regexp"
	"strings"
)

var (
	emailPattern     = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	phonePattern     = regexp.MustCompile(`^\+55\d{10,11}$`)
	randomKeyPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// ValidPixKey — проверка PIX-ключа по заявленному типу:
// EMAIL, CPF, CNPJ, PHONE (бразильский номер), RANDOM (uuid-образный ключ).
func ValidPixKey(pixKey, pixKeyType string) bool {
	if pixKey == "" || pixKeyType == "" {
		return false
	}

	switch strings.ToUpper(pixKeyType) {
	case "EMAIL":
		return emailPattern.MatchString(pixKey)
	case "CPF":
		return ValidCPF(pixKey)
	case "CNPJ":
		return ValidCNPJ(pixKey)
	case "PHONE":
		return validPhone(pixKey)
	case "RANDOM":
		return randomKeyPattern.MatchString(strings.ToLower(pixKey))
	default:
		return false
	}
}

// бразильский телефон: +55 + DDD (2 цифры) + номер (8 или 9 цифр);
// формат без плюса тоже принимается.
func validPhone(phone string) bool {
	clean := DigitsOnly(phone)
	if len(clean) < 12 || !strings.HasPrefix(clean, "55") {
		return false
	}
	return phonePattern.MatchString("+" + clean)
}
