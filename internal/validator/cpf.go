package validator

import "strings"

// ValidCPF — структурная проверка CPF: 11 цифр, два контрольных разряда.
// Форматирующие символы (точки, дефис) допускаются и вырезаются.
func ValidCPF(cpf string) bool {
	clean := DigitsOnly(cpf)
	if len(clean) != 11 {
		return false
	}
	if allSameDigits(clean) {
		return false
	}

	// первый контрольный разряд: веса 10..2
	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(clean[i]-'0') * (10 - i)
	}
	first := 11 - sum%11
	if first >= 10 {
		first = 0
	}
	if first != int(clean[9]-'0') {
		return false
	}

	// второй контрольный разряд: веса 11..2
	sum = 0
	for i := 0; i < 10; i++ {
		sum += int(clean[i]-'0') * (11 - i)
	}
	second := 11 - sum%11
	if second >= 10 {
		second = 0
	}
	return second == int(clean[10]-'0')
}

// DigitsOnly убирает форматирующие символы: "123.456.789-09" -> "12345678909".
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSameDigits(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
