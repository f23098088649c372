package validator

var (
	cnpjWeightsFirst  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsSecond = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidCNPJ — структурная проверка CNPJ: 14 цифр, два контрольных разряда.
// Форматирующие символы (точки, слэш, дефис) допускаются и вырезаются.
func ValidCNPJ(cnpj string) bool {
	clean := DigitsOnly(cnpj)
	if len(clean) != 14 {
		return false
	}
	if allSameDigits(clean) {
		return false
	}

	sum := 0
	for i := 0; i < 12; i++ {
		sum += int(clean[i]-'0') * cnpjWeightsFirst[i]
	}
	first := sum % 11
	if first < 2 {
		first = 0
	} else {
		first = 11 - first
	}
	if first != int(clean[12]-'0') {
		return false
	}

	sum = 0
	for i := 0; i < 13; i++ {
		sum += int(clean[i]-'0') * cnpjWeightsSecond[i]
	}
	second := sum % 11
	if second < 2 {
		second = 0
	} else {
		second = 11 - second
	}
	return second == int(clean[13]-'0')
}
