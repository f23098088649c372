package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCNPJ(t *testing.T) {
	tests := []struct {
		name  string
		cnpj  string
		valid bool
	}{
		{name: "valid plain", cnpj: "11222333000181", valid: true},
		{name: "valid formatted", cnpj: "11.222.333/0001-81", valid: true},
		{name: "wrong first check digit", cnpj: "11222333000171", valid: false},
		{name: "wrong second check digit", cnpj: "11222333000182", valid: false},
		{name: "all same digits", cnpj: "11111111111111", valid: false},
		{name: "too short", cnpj: "1122233300018", valid: false},
		{name: "too long", cnpj: "112223330001811", valid: false},
		{name: "empty", cnpj: "", valid: false},
		{name: "cpf length", cnpj: "12345678909", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidCNPJ(tt.cnpj))
		})
	}
}
